package velox

import (
	"testing"
	"time"
)

func TestDefaultOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("expected the default Options to validate, got %v", err)
	}
}

func TestOptionsValidateRejectsInvalidBaseURL(t *testing.T) {
	o := DefaultOptions().WithBaseURL("not a url")
	if err := o.Validate(); err == nil {
		t.Fatal("expected a malformed BaseURL to fail validation")
	}
}

func TestOptionsValidateRejectsNonPositiveTimeouts(t *testing.T) {
	o := DefaultOptions().WithConnectTimeout(0)
	if err := o.Validate(); err == nil {
		t.Fatal("expected a zero ConnectTimeout to fail validation")
	}
}

func TestOptionsValidateCrossFieldReadTimeoutBelowConnect(t *testing.T) {
	o := DefaultOptions().WithConnectTimeout(10 * time.Second).WithReadTimeout(time.Second)
	if err := o.Validate(); err == nil {
		t.Fatal("expected ReadTimeout < ConnectTimeout to fail cross-field validation")
	}
}

func TestOptionsValidateCrossFieldMaxRedirectsWithoutFollow(t *testing.T) {
	o := DefaultOptions().WithFollowRedirects(false).WithMaxRedirects(3)
	if err := o.Validate(); err == nil {
		t.Fatal("expected MaxRedirects > 0 with FollowRedirects false to fail cross-field validation")
	}
}

func TestOptionsWithMethodsDoNotMutateReceiver(t *testing.T) {
	base := DefaultOptions()
	derived := base.WithUserAgent("custom-agent")
	if base.UserAgent == "custom-agent" {
		t.Fatal("expected With... to leave the receiver's UserAgent unchanged")
	}
	if derived.UserAgent != "custom-agent" {
		t.Fatal("expected the derived Options to carry the new UserAgent")
	}
}

func TestOptionsWithDefaultHeaderPreservesExisting(t *testing.T) {
	base := DefaultOptions().WithDefaultHeader("X-A", "1")
	derived := base.WithDefaultHeader("X-B", "2")
	if derived.DefaultHeaders["X-A"] != "1" || derived.DefaultHeaders["X-B"] != "2" {
		t.Fatalf("expected both headers to be present, got %+v", derived.DefaultHeaders)
	}
	if _, ok := base.DefaultHeaders["X-B"]; ok {
		t.Fatal("expected the base Options to be unaffected by a later WithDefaultHeader call")
	}
}

func TestOptionsWithRetryStatusCodesReplacesSet(t *testing.T) {
	o := DefaultOptions().WithRetryStatusCodes(500, 501)
	if o.RetryStatusCodes[429] {
		t.Fatal("expected WithRetryStatusCodes to replace the default set, not extend it")
	}
	if !o.RetryStatusCodes[500] || !o.RetryStatusCodes[501] {
		t.Fatalf("expected the new codes to be set, got %+v", o.RetryStatusCodes)
	}
}
