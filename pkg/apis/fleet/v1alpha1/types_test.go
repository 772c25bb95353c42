package v1alpha1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEpoch(t *testing.T) {
	want := time.Date(2025, 3, 4, 5, 6, 7, 250_000_000, time.UTC)
	e := NewEpoch(want)
	if got := e.Time(); !got.Equal(want) {
		t.Errorf("Epoch round trip = %v, want %v", got, want)
	}
	if float64(e) != float64(want.Unix())+0.25 {
		t.Errorf("Epoch = %v", float64(e))
	}
}

func TestCommandTimeout(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want float64
	}{
		{"explicit", Command{TimeoutSeconds: 5, Parameters: map[string]any{"timeout": 9.0}}, 5},
		{"parameter", Command{Parameters: map[string]any{"timeout": 9.0}}, 9},
		{"non numeric parameter", Command{Parameters: map[string]any{"timeout": "9"}}, 0},
		{"none", Command{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.Timeout(); got != tt.want {
				t.Errorf("Timeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandWireFormat(t *testing.T) {
	raw := `{"command_id":"c1","execution_id":"e1","command_type":"prepare","command":"echo ${x}","parameters":{"x":"hi"},"execution_time":1700000000.5}`
	var c Command
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatal(err)
	}
	if c.Type != CommandPrepare || c.ExecutionTime != 1700000000.5 || c.Parameters["x"] != "hi" {
		t.Errorf("unexpected decode: %+v", c)
	}
}

func TestStatusDetails(t *testing.T) {
	s := StatusMessage{Details: map[string]any{DetailExecutionID: "e1", DetailReady: true, DetailCommandID: 3}}
	if s.DetailString(DetailExecutionID) != "e1" || !s.DetailBool(DetailReady) {
		t.Errorf("details not read back: %+v", s.Details)
	}
	if s.DetailString(DetailCommandID) != "" || s.DetailBool(DetailExecuting) {
		t.Error("mistyped or absent details must read as zero values")
	}
}
