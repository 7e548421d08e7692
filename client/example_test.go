package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/adamwoolhether/httpstream/client"
	"github.com/adamwoolhether/httpstream/client/reachability"
	"github.com/adamwoolhether/httpstream/client/request"
)

func ExampleBuild() {
	c, err := client.Build(
		client.WithTimeout(10*time.Second),
		client.WithUserAgent("example/1.0"),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer c.CancelAllTasks()

	fmt.Println("client built")
	// Output: client built
}

func ExampleClient_Request() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"gopher"}`)
	}))
	defer ts.Close()

	c, err := client.Build()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer c.CancelAllTasks()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	body, err := c.Request(req).Wait()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(string(body))
	// Output: {"name":"gopher"}
}

func ExampleClient_DownloadURL() {
	data := []byte("example download payload")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	defer ts.Close()

	dir, err := os.MkdirTemp("", "example-download-*")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)

	c, err := client.Build(client.WithDownloadDir(dir))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer c.CancelAllTasks()

	u, _ := url.Parse(ts.URL)

	var last float64
	for ev := range c.DownloadURL(u).Events() {
		switch ev.Kind {
		case client.KindProgress:
			last = ev.Fraction
		case client.KindResponse:
			got, _ := os.ReadFile(ev.Payload)
			fmt.Printf("progress %.0f%%, %d bytes\n", last*100, len(got))
		case client.KindFailure:
			fmt.Println("error:", ev.Err)
		}
	}
	// Output: progress 100%, 24 bytes
}

func ExampleClient_Endpoint() {
	c, err := client.Build(client.WithReachability(reachability.Static(false)))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer c.CancelAllTasks()

	_, err = c.Endpoint(context.Background(), client.Endpoint{
		Environment: client.Environment{BaseURL: "https://api.example.com"},
		Method:      request.MethodGet,
	})
	fmt.Println(errors.Is(err, client.ErrNoInternet))
	// Output: true
}
