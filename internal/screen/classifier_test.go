package screen

import "testing"

const testPkg = "com.example.app"

func TestStatePredicates(t *testing.T) {
	terminal := []State{StateSuspended, StateVerificationRequired, StateTwoFactorRequired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateLoggedIn, StateHome, StateLogin, StatePopupDialog, StateUnknown} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if !StateLogin.LoggedOut() || !StateSignup.LoggedOut() {
		t.Error("login and signup are logged-out states")
	}
	if StateSuspended.LoggedOut() {
		t.Error("suspended is not a logged-out state")
	}
}

func TestMarkerClassifier(t *testing.T) {
	c := NewMarkerClassifier(testPkg)

	tests := []struct {
		name string
		snap Snapshot
		want State
	}{
		{"suspended", Snapshot{Raw: "We suspended your account on..."}, StateSuspended},
		{"verification", Snapshot{Raw: "Confirm it's you to continue"}, StateVerificationRequired},
		{"two factor", Snapshot{Raw: "Enter the code we sent"}, StateTwoFactorRequired},
		{"login", Snapshot{Raw: "Log In | Forgot password?"}, StateLogin},
		{"signup", Snapshot{Raw: "Create new account"}, StateSignup},
		{"profile", Snapshot{Raw: "Edit Profile 120 followers"}, StateProfile},
		{"home", Snapshot{Raw: "home feed", ForegroundApp: testPkg}, StateHome},
		{"logged-in fallback", Snapshot{Raw: "anything in-app", ForegroundApp: testPkg}, StateLoggedIn},
		{"unknown", Snapshot{Raw: "launcher", ForegroundApp: "com.android.launcher"}, StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.snap); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.snap.Raw, got, tt.want)
			}
		})
	}
}

func TestPopupWinsOverFeatureScreens(t *testing.T) {
	c := NewMarkerClassifier(testPkg)

	// A dialog layered over a recognizable screen must classify as popup.
	snap := Snapshot{
		Raw:           "Turn on notifications? Not Now -- Edit Profile 120 followers",
		ForegroundApp: testPkg,
	}
	if got := c.Classify(snap); got != StatePopupDialog {
		t.Errorf("expected popup to take precedence, got %s", got)
	}
}

func TestNewMatcherClassifierReordersPopupFirst(t *testing.T) {
	always := func(Snapshot) bool { return true }
	c := NewMatcherClassifier([]Matcher{
		{State: StateHome, Match: always},
		{State: StatePopupDialog, Match: always},
	})

	// Even registered last, the popup matcher runs first.
	if got := c.Classify(Snapshot{}); got != StatePopupDialog {
		t.Errorf("expected popup matcher to be moved to the front, got %s", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewMarkerClassifier(testPkg)
	snap := Snapshot{Raw: "Edit Profile 120 followers", ForegroundApp: testPkg}

	first := c.Classify(snap)
	for i := 0; i < 10; i++ {
		if got := c.Classify(snap); got != first {
			t.Fatalf("classification changed between calls: %s vs %s", first, got)
		}
	}
}
