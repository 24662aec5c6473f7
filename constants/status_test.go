package constants

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ProcessingStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusError, true},
		{StatusProcessing, StatusReadyForAI, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusError, true},
		{StatusReadyForAI, StatusError, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusProcessing, false},
		{StatusReadyForAI, StatusProcessing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for s, want := range map[ProcessingStatus]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusReadyForAI: true,
		StatusCompleted:  true,
		StatusError:      true,
	} {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}
