package domain

import (
	"errors"
	"testing"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{"critical", SeverityCritical, false},
		{"HIGH", SeverityHigh, false},
		{" Medium ", SeverityMedium, false},
		{"low", SeverityLow, false},
		{"urgent", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSeverity) {
					t.Errorf("Expected ErrInvalidSeverity, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSeverityForRank(t *testing.T) {
	tests := []struct {
		name   string
		rank   int
		levels int
		want   Severity
	}{
		{"green of four", 0, 4, SeverityLow},
		{"yellow of four", 1, 4, SeverityMedium},
		{"orange of four", 2, 4, SeverityHigh},
		{"red of four", 3, 4, SeverityCritical},
		{"low of three", 0, 3, SeverityLow},
		{"medium of three", 1, 3, SeverityMedium},
		{"terminal of three", 2, 3, SeverityCritical},
		{"single level", 0, 1, SeverityCritical},
		{"out of range", 9, 4, SeverityCritical},
		{"negative rank", -1, 4, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SeverityForRank(tt.rank, tt.levels); got != tt.want {
				t.Errorf("SeverityForRank(%d, %d) = %s, want %s", tt.rank, tt.levels, got, tt.want)
			}
		})
	}
}

func TestIssueState(t *testing.T) {
	tests := []struct {
		state    IssueState
		valid    bool
		terminal bool
	}{
		{StatePending, true, false},
		{StateEscalated, true, false},
		{StateResolved, true, true},
		{IssueState("closed"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if tt.state.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v", tt.state.IsValid(), tt.valid)
			}
			if tt.state.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", tt.state.IsTerminal(), tt.terminal)
			}
			fields := tt.state.LogFields()
			if fields["state"] != string(tt.state) {
				t.Errorf("LogFields state = %v, want %s", fields["state"], tt.state)
			}
		})
	}
}
