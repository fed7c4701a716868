package captcha

import (
	"image"
	"math/rand/v2"
	"strings"
	"testing"
)

type recordingRenderer struct {
	rendered []string
}

func (r *recordingRenderer) Render(challenge string) (image.Image, error) {
	r.rendered = append(r.rendered, challenge)
	return image.NewRGBA(image.Rect(0, 0, CanvasWidth, CanvasHeight)), nil
}

type notificationLog struct {
	values []bool
}

func (l *notificationLog) record(verified bool) {
	l.values = append(l.values, verified)
}

func (l *notificationLog) last() bool {
	return l.values[len(l.values)-1]
}

func newTestVerifier(t *testing.T, seed uint64) (*Verifier, *recordingRenderer, *notificationLog) {
	t.Helper()
	renderer := &recordingRenderer{}
	notifications := &notificationLog{}
	verifier, err := NewVerifier(VerifierConfig{
		OnVerified: notifications.record,
		Source:     rand.New(rand.NewPCG(seed, seed+1)),
		Renderer:   renderer,
	})
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}
	return verifier, renderer, notifications
}

func TestVerifierStartsUnstarted(t *testing.T) {
	verifier, renderer, notifications := newTestVerifier(t, 1)
	if verifier.State() != StateUnstarted {
		t.Fatalf("expected unstarted, got %s", verifier.State())
	}
	if verifier.Challenge() != "" || verifier.Image() != nil {
		t.Fatalf("expected no challenge before opt-in")
	}
	if verifier.SetInput("ANYTHING") {
		t.Fatalf("input before opt-in must not verify")
	}
	if len(renderer.rendered) != 0 || len(notifications.values) != 0 {
		t.Fatalf("expected no rendering or notifications before opt-in")
	}
}

func TestVerifierBeginChallengeRendersCurrentChallenge(t *testing.T) {
	verifier, renderer, notifications := newTestVerifier(t, 2)
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if verifier.State() != StateChallengeShown {
		t.Fatalf("expected challenge-shown, got %s", verifier.State())
	}
	if !IsValidChallenge(verifier.Challenge()) {
		t.Fatalf("unexpected challenge %q", verifier.Challenge())
	}
	if len(renderer.rendered) != 1 || renderer.rendered[0] != verifier.Challenge() {
		t.Fatalf("rendered %v does not match challenge %q", renderer.rendered, verifier.Challenge())
	}
	if len(notifications.values) != 1 || notifications.last() {
		t.Fatalf("expected a single unverified notification, got %v", notifications.values)
	}

	// a second opt-in while a challenge is visible keeps the same challenge
	current := verifier.Challenge()
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("second begin failed: %v", err)
	}
	if verifier.Challenge() != current {
		t.Fatalf("expected challenge to remain %q, got %q", current, verifier.Challenge())
	}
}

func TestVerifierCaseInsensitiveExactMatch(t *testing.T) {
	verifier, _, notifications := newTestVerifier(t, 3)
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	verifier.challenge = "7K9PXM"

	testCases := []struct {
		input string
		want  bool
	}{
		{input: "7K9PX", want: false},
		{input: "7K9PXN", want: false},
		{input: "7K9PXMM", want: false},
		{input: " 7K9PXM", want: false},
		{input: "7k9pxm", want: true},
		{input: "7K9PXM", want: true},
	}
	for _, testCase := range testCases {
		got := verifier.SetInput(testCase.input)
		if got != testCase.want {
			t.Fatalf("SetInput(%q) = %v, want %v", testCase.input, got, testCase.want)
		}
		if notifications.last() != testCase.want {
			t.Fatalf("observer saw %v for %q, want %v", notifications.last(), testCase.input, testCase.want)
		}
		wantState := StateChallengeShown
		if testCase.want {
			wantState = StateVerified
		}
		if verifier.State() != wantState {
			t.Fatalf("state after %q = %s, want %s", testCase.input, verifier.State(), wantState)
		}
	}
}

func TestVerifierEditAfterVerificationUnverifies(t *testing.T) {
	verifier, _, notifications := newTestVerifier(t, 4)
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if !verifier.SetInput(verifier.Challenge()) {
		t.Fatalf("expected exact input to verify")
	}
	if verifier.SetInput(verifier.Challenge()[:ChallengeLength-1]) {
		t.Fatalf("expected edited input to unverify")
	}
	if verifier.State() != StateChallengeShown || notifications.last() {
		t.Fatalf("expected challenge-shown and unverified notification, got %s %v", verifier.State(), notifications.values)
	}
}

func TestVerifierRepeatedWrongInputIsStable(t *testing.T) {
	verifier, renderer, notifications := newTestVerifier(t, 5)
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	challenge := verifier.Challenge()
	wrong := strings.Repeat("Z", ChallengeLength)
	if wrong == challenge {
		wrong = strings.Repeat("Y", ChallengeLength)
	}
	for range 5 {
		if verifier.SetInput(wrong) {
			t.Fatalf("wrong input verified")
		}
	}
	if verifier.State() != StateChallengeShown || verifier.Challenge() != challenge {
		t.Fatalf("repeated wrong input changed state to %s/%q", verifier.State(), verifier.Challenge())
	}
	if len(renderer.rendered) != 1 {
		t.Fatalf("wrong input must not regenerate the challenge")
	}
	for _, value := range notifications.values {
		if value {
			t.Fatalf("unexpected verified notification in %v", notifications.values)
		}
	}
}

func TestVerifierRefreshResetsVerification(t *testing.T) {
	verifier, renderer, notifications := newTestVerifier(t, 6)
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if !verifier.SetInput(verifier.Challenge()) {
		t.Fatalf("expected verification")
	}
	if err := verifier.Refresh(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if verifier.Verified() || verifier.State() != StateChallengeShown {
		t.Fatalf("expected unverified challenge-shown after refresh, got %s", verifier.State())
	}
	if verifier.Input() != "" {
		t.Fatalf("expected refresh to clear input, got %q", verifier.Input())
	}
	if notifications.last() {
		t.Fatalf("expected unverified notification after refresh")
	}
	if renderer.rendered[len(renderer.rendered)-1] != verifier.Challenge() {
		t.Fatalf("rendered challenge is stale")
	}
	// the old input is compared against the new challenge only
	previous := renderer.rendered[0]
	if previous != verifier.Challenge() && verifier.SetInput(previous) {
		t.Fatalf("stale challenge must not verify")
	}
}

func TestVerifierResetReturnsToUnstarted(t *testing.T) {
	verifier, _, notifications := newTestVerifier(t, 7)
	verifier.Reset()
	if len(notifications.values) != 0 {
		t.Fatalf("reset from unstarted must be a no-op")
	}
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	verifier.Reset()
	if verifier.State() != StateChallengeShown {
		t.Fatalf("reset is only reachable from verified, got %s", verifier.State())
	}
	verifier.SetInput(verifier.Challenge())
	verifier.Reset()
	if verifier.State() != StateUnstarted || verifier.Challenge() != "" {
		t.Fatalf("expected unstarted after reset, got %s", verifier.State())
	}
	if notifications.last() {
		t.Fatalf("expected unverified notification after reset")
	}
	if err := verifier.BeginChallenge(); err != nil {
		t.Fatalf("second begin failed: %v", err)
	}
	if verifier.State() != StateChallengeShown {
		t.Fatalf("expected widget to be reusable after reset")
	}
}

func TestVerifierInstancesAreIndependent(t *testing.T) {
	first, _, _ := newTestVerifier(t, 8)
	second, _, _ := newTestVerifier(t, 80)
	if err := first.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := second.BeginChallenge(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	first.SetInput(first.Challenge())
	if !first.Verified() || second.Verified() {
		t.Fatalf("verifying one widget must not affect another")
	}
}

func TestStateString(t *testing.T) {
	if StateChallengeShown.String() != "challenge-shown" {
		t.Fatalf("unexpected state name %q", StateChallengeShown.String())
	}
}
