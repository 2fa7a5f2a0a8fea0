package obs

import (
	"testing"

	"github.com/stagelink/tally-core/internal/device"
)

func layoutState() *sceneState {
	s := newSceneState()
	s.setSources("Scene A", []string{"Cam 1", "Cam 2"})
	s.setSources("Scene B", []string{"Cam 2", "Cam 3"})
	s.setSources("Scene C", []string{"Cam 4"})
	return s
}

func TestSceneStates_ProgramOnly(t *testing.T) {
	s := layoutState()
	s.program = "Scene A"

	states := s.states()
	want := map[string]device.TallyState{
		"Cam 1": device.TallyLive,
		"Cam 2": device.TallyLive,
		"Cam 3": device.TallyIdle,
		"Cam 4": device.TallyIdle,
	}
	for source, expected := range want {
		if states[source] != expected {
			t.Errorf("%s = %q, want %q", source, states[source], expected)
		}
	}
}

func TestSceneStates_StudioModePreview(t *testing.T) {
	s := layoutState()
	s.program = "Scene A"
	s.preview = "Scene B"
	s.studioMode = true

	states := s.states()
	if states["Cam 3"] != device.TallyPreview {
		t.Errorf("preview-only source = %q, want preview", states["Cam 3"])
	}
	// A source in both program and preview reads as live.
	if states["Cam 2"] != device.TallyLive {
		t.Errorf("shared source = %q, want live", states["Cam 2"])
	}
	if states["Cam 4"] != device.TallyIdle {
		t.Errorf("unrelated source = %q, want idle", states["Cam 4"])
	}
}

func TestSceneStates_PreviewIgnoredOutsideStudioMode(t *testing.T) {
	s := layoutState()
	s.program = "Scene A"
	s.preview = "Scene B"
	s.studioMode = false

	if got := s.states()["Cam 3"]; got != device.TallyIdle {
		t.Errorf("preview source without studio mode = %q, want idle", got)
	}
}

func TestSceneStates_Transition(t *testing.T) {
	s := layoutState()
	s.program = "Scene A"
	s.preview = "Scene B"
	s.studioMode = true
	s.transitioning = true

	states := s.states()
	if states["Cam 1"] != device.TallyTransition {
		t.Errorf("program source during transition = %q", states["Cam 1"])
	}
	if states["Cam 3"] != device.TallyTransition {
		t.Errorf("preview source during transition = %q", states["Cam 3"])
	}
	if states["Cam 4"] != device.TallyIdle {
		t.Errorf("unrelated source during transition = %q", states["Cam 4"])
	}
}

func TestSceneStates_Reset(t *testing.T) {
	s := layoutState()
	s.program = "Scene A"
	s.studioMode = true
	s.transitioning = true

	s.reset()
	if len(s.states()) != 0 {
		t.Error("reset state still derives sources")
	}
	if s.program != "" || s.studioMode || s.transitioning {
		t.Error("reset left residual fields")
	}
}
