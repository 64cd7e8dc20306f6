package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestNewOutbound(t *testing.T) {
	c := NewOutbound()
	if c.Timeout != defaultTimeout {
		t.Fatalf("timeout=%v want %v", c.Timeout, defaultTimeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok || tr.ResponseHeaderTimeout != 10*time.Second {
		t.Fatalf("unexpected transport %#v", c.Transport)
	}

	if c := NewOutbound(WithTimeout(time.Second)); c.Timeout != time.Second {
		t.Fatalf("timeout=%v want 1s", c.Timeout)
	}
}
