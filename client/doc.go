// Package client is a networking client whose operations are observable
// streams.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//		client.WithPinning(client.PublicKeyPinning{Hash: "sha256/..."}),
//	)
//
// # Making Requests
//
// Describe an [Endpoint] and let the client build the request. Building
// fails fast with [ErrNoInternet] or [ErrBadURL]:
//
//	req, err := c.Endpoint(ctx, client.Endpoint{
//		Environment: client.Environment{BaseURL: "https://api.example.com"},
//		Path:        "/v1/resource",
//		Method:      request.MethodGet,
//	})
//	body, err := c.Request(req).Wait()
//
// # Streams
//
// Every operation returns a [Stream]. Uploads and downloads emit progress
// fractions before their single terminal event:
//
//	s := c.Download(req, client.WithChecksum(sha256.New(), expectedHex))
//	for ev := range s.Events() {
//		switch ev.Kind {
//		case client.KindProgress:
//			fmt.Printf("%.0f%%\n", ev.Fraction*100)
//		case client.KindResponse:
//			fmt.Println("saved to", ev.Payload)
//		case client.KindFailure:
//			fmt.Println("failed:", ev.Err)
//		}
//	}
//
// Failures are always a [NetworkError]; match them with errors.Is against
// the Err sentinels.
//
// # Cancellation
//
// [Client.CancelTaskWithURL] cancels one task. [Client.CancelAllTasks]
// invalidates the client for good.
package client
