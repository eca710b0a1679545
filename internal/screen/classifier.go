// Package screen defines the screen/state classifier contract. It maps an
// opaque UI snapshot to a closed enum of screen states; the heuristics that
// implement the mapping stay behind the Classifier interface.
package screen

// State is one classified screen of the target application.
type State string

const (
	StateLoggedIn             State = "logged-in"
	StateLogin                State = "login"
	StateSignup               State = "signup"
	StateSuspended            State = "suspended"
	StateVerificationRequired State = "verification-required"
	StateTwoFactorRequired    State = "2fa-required"
	StateHome                 State = "home"
	StateSearch               State = "search"
	StateProfile              State = "profile"
	StateDMInbox              State = "dm-inbox"
	StateDMThread             State = "dm-thread"
	StateStoryViewer          State = "story-viewer"
	StatePopupDialog          State = "popup-dialog"
	StateUnknown              State = "unknown"
)

// Terminal reports whether the state means the account cannot proceed without
// operator intervention.
func (s State) Terminal() bool {
	switch s {
	case StateSuspended, StateVerificationRequired, StateTwoFactorRequired:
		return true
	}
	return false
}

// LoggedOut reports whether the state shows an authentication screen that a
// login attempt could resolve.
func (s State) LoggedOut() bool {
	return s == StateLogin || s == StateSignup
}

// Snapshot is an opaque UI capture paired with the app identity observed in
// the foreground when it was taken.
type Snapshot struct {
	// Raw is the captured UI hierarchy or screen dump; classifiers treat it
	// as opaque text.
	Raw string
	// ForegroundApp is the package identity of the app on screen.
	ForegroundApp string
}

// Classifier maps a snapshot to a screen state. Implementations must be
// deterministic for a given snapshot.
type Classifier interface {
	Classify(snap Snapshot) State
}

// Matcher is one heuristic in a prioritized list: it either recognizes its
// state in the snapshot or passes.
type Matcher struct {
	State State
	Match func(snap Snapshot) bool
}

// MatcherClassifier runs matchers in order and returns the first confident
// match. The popup/dialog matcher must be ordered before every feature-screen
// matcher so a transient overlay is never misread as a stable screen;
// NewMatcherClassifier enforces that ordering.
type MatcherClassifier struct {
	matchers []Matcher
}

// NewMatcherClassifier builds a classifier from the given matchers, moving
// any popup-dialog matcher to the front of the list.
func NewMatcherClassifier(matchers []Matcher) *MatcherClassifier {
	ordered := make([]Matcher, 0, len(matchers))
	for _, m := range matchers {
		if m.State == StatePopupDialog {
			ordered = append(ordered, m)
		}
	}
	for _, m := range matchers {
		if m.State != StatePopupDialog {
			ordered = append(ordered, m)
		}
	}
	return &MatcherClassifier{matchers: ordered}
}

// Classify returns the first matching state, or StateUnknown.
func (c *MatcherClassifier) Classify(snap Snapshot) State {
	for _, m := range c.matchers {
		if m.Match(snap) {
			return m.State
		}
	}
	return StateUnknown
}
