package captcha

import (
	"fmt"
	"image"
	"math/rand/v2"
	"strings"
)

// State enumerates the verification states of a Verifier.
type State int

const (
	// StateUnstarted is the initial state; no challenge is visible.
	StateUnstarted State = iota
	// StateChallengeShown means a challenge is rendered and awaiting input.
	StateChallengeShown
	// StateVerified means the current input matches the current challenge.
	StateVerified
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateChallengeShown:
		return "challenge-shown"
	case StateVerified:
		return "verified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// VerifiedFunc receives the verified flag after every state evaluation.
type VerifiedFunc func(verified bool)

// VerifierConfig describes the collaborators of a Verifier.
type VerifierConfig struct {
	OnVerified VerifiedFunc
	Source     *rand.Rand
	Renderer   Renderer
}

// Verifier is a single challenge-response widget. It is not safe for
// concurrent use; callers that share one across goroutines serialize access.
type Verifier struct {
	state      State
	challenge  string
	input      string
	image      image.Image
	source     *rand.Rand
	renderer   Renderer
	onVerified VerifiedFunc
}

// NewVerifier builds a Verifier in StateUnstarted.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	source := cfg.Source
	if source == nil {
		source = newRandomSource()
	}
	renderer := cfg.Renderer
	if renderer == nil {
		canvas, err := NewCanvasRenderer(source)
		if err != nil {
			return nil, err
		}
		renderer = canvas
	}
	onVerified := cfg.OnVerified
	if onVerified == nil {
		onVerified = func(bool) {}
	}
	return &Verifier{
		state:      StateUnstarted,
		source:     source,
		renderer:   renderer,
		onVerified: onVerified,
	}, nil
}

// BeginChallenge handles the user opting in. It shows a fresh challenge when
// the widget is unstarted and does nothing otherwise.
func (v *Verifier) BeginChallenge() error {
	if v.state != StateUnstarted {
		return nil
	}
	return v.showNewChallenge()
}

// Refresh discards the current challenge and typed input and shows a new one.
func (v *Verifier) Refresh() error {
	return v.showNewChallenge()
}

// SetInput records the typed input and re-evaluates it against the current
// challenge. Input is upper-cased before an exact comparison. Every call made
// while a challenge is visible notifies the observer; calls while unstarted
// are ignored.
func (v *Verifier) SetInput(input string) bool {
	if v.state == StateUnstarted {
		return false
	}
	v.input = input
	matched := strings.ToUpper(input) == v.challenge
	if matched {
		v.state = StateVerified
	} else {
		v.state = StateChallengeShown
	}
	v.onVerified(matched)
	return matched
}

// Reset returns a verified widget to StateUnstarted.
func (v *Verifier) Reset() {
	if v.state != StateVerified {
		return
	}
	v.state = StateUnstarted
	v.challenge = ""
	v.input = ""
	v.image = nil
	v.onVerified(false)
}

// State returns the current verification state.
func (v *Verifier) State() State {
	return v.state
}

// Verified reports whether the widget is in StateVerified.
func (v *Verifier) Verified() bool {
	return v.state == StateVerified
}

// Challenge returns the challenge currently on display, or "" when unstarted.
func (v *Verifier) Challenge() string {
	return v.challenge
}

// Input returns the last typed input.
func (v *Verifier) Input() string {
	return v.input
}

// Image returns the raster of the current challenge, or nil when unstarted.
func (v *Verifier) Image() image.Image {
	return v.image
}

func (v *Verifier) showNewChallenge() error {
	challenge := GenerateChallenge(v.source)
	rendered, err := v.renderer.Render(challenge)
	if err != nil {
		return fmt.Errorf("captcha: render challenge: %w", err)
	}
	v.challenge = challenge
	v.image = rendered
	v.input = ""
	v.state = StateChallengeShown
	v.onVerified(false)
	return nil
}
