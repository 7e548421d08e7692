package neterror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	testCases := []struct {
		code    int
		expKind Kind
		expNil  bool
	}{
		{code: 0, expKind: KindUnknown},
		{code: 100, expKind: KindUnknown},
		{code: 199, expKind: KindUnknown},
		{code: 200, expNil: true},
		{code: 204, expNil: true},
		{code: 299, expNil: true},
		{code: 300, expKind: KindRedirected},
		{code: 304, expKind: KindRedirected},
		{code: 399, expKind: KindRedirected},
		{code: 400, expKind: KindBadRequest},
		{code: 404, expKind: KindBadRequest},
		{code: 499, expKind: KindBadRequest},
		{code: 500, expKind: KindServerError},
		{code: 503, expKind: KindServerError},
		{code: 599, expKind: KindServerError},
		{code: 600, expKind: KindUnknown},
		{code: 999, expKind: KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("status %d", tc.code), func(t *testing.T) {
			err := ClassifyStatus(tc.code)
			if tc.expNil {
				if err != nil {
					t.Fatalf("exp nil, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("exp kind %s, got nil", tc.expKind)
			}
			if err.Kind != tc.expKind {
				t.Errorf("exp kind %s, got %s", tc.expKind, err.Kind)
			}
			if err.StatusCode != tc.code {
				t.Errorf("exp status %d, got %d", tc.code, err.StatusCode)
			}
		})
	}
}

func TestClassify_NilResponse(t *testing.T) {
	err := Classify(nil)
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("exp ErrUnknown, got %v", err)
	}
}

func TestClassify_Response(t *testing.T) {
	err := Classify(&http.Response{StatusCode: http.StatusNotFound})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("exp ErrBadRequest, got %v", err)
	}
}

func TestError_IsMatchesKindOnly(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindServerError, StatusCode: 502})

	if !errors.Is(err, ErrServerError) {
		t.Error("exp wrapped error to match ErrServerError")
	}
	if errors.Is(err, ErrBadRequest) {
		t.Error("exp wrapped error not to match ErrBadRequest")
	}
}

type rejection struct{}

func (rejection) Error() string       { return "pin mismatch" }
func (rejection) TrustRejected() bool { return true }

func TestFromTransport(t *testing.T) {
	plain := errors.New("connection reset by peer")

	testCases := []struct {
		name      string
		err       error
		expKind   Kind
		expReason string
	}{
		{
			name:      "generic error becomes api error",
			err:       plain,
			expKind:   KindAPI,
			expReason: "connection reset by peer",
		},
		{
			name:      "trust rejection",
			err:       fmt.Errorf("tls: %w", rejection{}),
			expKind:   KindTrustFailed,
			expReason: "pin mismatch",
		},
		{
			name:    "already classified",
			err:     fmt.Errorf("outer: %w", ErrNoInternet),
			expKind: KindNoInternet,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromTransport(tc.err)
			if got.Kind != tc.expKind {
				t.Fatalf("exp kind %s, got %s", tc.expKind, got.Kind)
			}
			if got.Reason != tc.expReason {
				t.Errorf("exp reason %q, got %q", tc.expReason, got.Reason)
			}
		})
	}

	if FromTransport(nil) != nil {
		t.Error("exp nil for nil error")
	}
}

func TestError_Messages(t *testing.T) {
	api := &Error{Kind: KindAPI, Reason: "timeout"}
	if api.Error() != "timeout" {
		t.Errorf("exp reason as message, got %q", api.Error())
	}

	bad := &Error{Kind: KindBadRequest, StatusCode: 404}
	want := "bad request, please check your request and try again (HTTP 404)"
	if bad.Error() != want {
		t.Errorf("exp %q, got %q", want, bad.Error())
	}
}
