package syncerr

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestClassification(t *testing.T) {
	netErr := fmt.Errorf("get_all: %w", Network("post", io.ErrUnexpectedEOF))
	if !IsNetwork(netErr) {
		t.Error("expected wrapped network error to match ErrNetwork")
	}
	if IsAction(netErr) {
		t.Error("network error must not match ErrActionFailure")
	}
	if !errors.Is(netErr, io.ErrUnexpectedEOF) {
		t.Error("expected cause to stay reachable")
	}

	actErr := fmt.Errorf("commit: %w", Action("create", "missing new_id for action %d", 3))
	if !IsAction(actErr) || IsNetwork(actErr) {
		t.Errorf("unexpected classification for %v", actErr)
	}

	var ae *ActionError
	if !errors.As(actErr, &ae) || ae.Op != "create" {
		t.Errorf("expected ActionError with op create, got %+v", ae)
	}
}
