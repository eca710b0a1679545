package screen

import "strings"

// NewMarkerClassifier builds the default classifier: plain text markers over
// the raw snapshot, one matcher per state. Deployments with richer UI-tree
// heuristics replace this wholesale through the Classifier interface.
func NewMarkerClassifier(appPackage string) *MatcherClassifier {
	contains := func(markers ...string) func(Snapshot) bool {
		return func(snap Snapshot) bool {
			raw := strings.ToLower(snap.Raw)
			for _, m := range markers {
				if strings.Contains(raw, m) {
					return true
				}
			}
			return false
		}
	}

	matchers := []Matcher{
		// Popup must win over every feature screen.
		{State: StatePopupDialog, Match: contains("dialog", "popup", "not now", "turn on notifications")},
		{State: StateSuspended, Match: contains("account suspended", "we suspended your account")},
		{State: StateVerificationRequired, Match: contains("confirm it's you", "verify your account", "unusual login")},
		{State: StateTwoFactorRequired, Match: contains("two-factor", "enter the code", "security code")},
		{State: StateLogin, Match: contains("log in", "forgot password")},
		{State: StateSignup, Match: contains("sign up", "create new account")},
		{State: StateDMThread, Match: contains("message...", "direct thread")},
		{State: StateDMInbox, Match: contains("direct inbox", "your messages")},
		{State: StateStoryViewer, Match: contains("story viewer", "send message")},
		{State: StateSearch, Match: contains("search and explore")},
		{State: StateProfile, Match: contains("edit profile", "followers")},
		{State: StateHome, Match: func(snap Snapshot) bool {
			return snap.ForegroundApp == appPackage &&
				strings.Contains(strings.ToLower(snap.Raw), "home feed")
		}},
		// Foreground identity alone confirms a logged-in app when no
		// specific screen matched.
		{State: StateLoggedIn, Match: func(snap Snapshot) bool {
			return snap.ForegroundApp == appPackage
		}},
	}
	return NewMatcherClassifier(matchers)
}
