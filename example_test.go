package httpstream_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/adamwoolhether/httpstream"
	"github.com/adamwoolhether/httpstream/client"
	"github.com/adamwoolhether/httpstream/client/request"
)

func ExampleNewClient() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"msg":"hello"}`)
	}))
	defer ts.Close()

	c, err := httpstream.NewClient(client.WithTimeout(5 * time.Second))
	if err != nil {
		fmt.Println("build error:", err)
		return
	}
	defer c.CancelAllTasks()

	req, err := c.Endpoint(context.Background(), client.Endpoint{
		Environment: client.Environment{BaseURL: ts.URL},
		Method:      request.MethodGet,
	})
	if err != nil {
		fmt.Println("endpoint error:", err)
		return
	}

	body, err := c.Request(req).Wait()
	if err != nil {
		fmt.Println("request error:", err)
		return
	}

	fmt.Println(string(body))
	// Output: {"msg":"hello"}
}
