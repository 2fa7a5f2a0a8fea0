package obs

import (
	"github.com/stagelink/tally-core/internal/device"
)

// sceneState reduces the OBS scene model to tally terms. It tracks the
// current program and preview scenes, studio mode, whether a transition
// is running, and which sources each known scene contains.
//
// Not safe for concurrent use; the client confines it to its event
// worker goroutine.
type sceneState struct {
	program       string
	preview       string
	studioMode    bool
	transitioning bool
	sources       map[string][]string
}

func newSceneState() *sceneState {
	return &sceneState{sources: make(map[string][]string)}
}

// setSources records the source list for a scene.
func (s *sceneState) setSources(scene string, sources []string) {
	s.sources[scene] = sources
}

// knowsScene reports whether a scene's sources have been fetched.
func (s *sceneState) knowsScene(scene string) bool {
	_, ok := s.sources[scene]
	return ok
}

// reset clears everything; applied when OBS swaps scene collections so
// the stale layout never bleeds into the new one.
func (s *sceneState) reset() {
	s.program = ""
	s.preview = ""
	s.studioMode = false
	s.transitioning = false
	s.sources = make(map[string][]string)
}

// states derives a tally state for every known source.
//
// Program scene sources are live, preview scene sources (studio mode)
// are preview, and everything else is idle. While a transition runs,
// sources entering or leaving program show transition instead, so
// operators see the cut happening rather than a hard flip.
func (s *sceneState) states() map[string]device.TallyState {
	out := make(map[string]device.TallyState)

	for _, sources := range s.sources {
		for _, name := range sources {
			out[name] = device.TallyIdle
		}
	}

	if s.studioMode && s.preview != "" {
		for _, name := range s.sources[s.preview] {
			if s.transitioning {
				out[name] = device.TallyTransition
			} else {
				out[name] = device.TallyPreview
			}
		}
	}

	// Program wins over preview for sources present in both scenes.
	for _, name := range s.sources[s.program] {
		if s.transitioning {
			out[name] = device.TallyTransition
		} else {
			out[name] = device.TallyLive
		}
	}

	return out
}
