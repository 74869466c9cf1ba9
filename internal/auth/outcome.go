// internal/auth/outcome.go
package auth

import "fmt"

// OutcomeKind is the terminal variant of a login.
type OutcomeKind int

const (
	// Success means the authenticated landing page was reached.
	Success OutcomeKind = iota
	// Redirect means control was handed to the caller's RedirectHandler.
	Redirect
	// Failure means the login could not complete; Outcome.Reason says why.
	Failure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Redirect:
		return "redirect"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of Login. State is the state the machine was in when
// it terminated.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	State  State
}

// State is a step of the login state machine.
type State int

const (
	StateStart State = iota
	StateDetectTopology
	StateDismissAccountPicker
	StateEnterUsername
	StatePostUsername
	StateEnterPassword
	StateMfaChallenge
	StateStaySignedInPrompt
	StateAwaitLanding
	StateAuthenticated
	StateRedirected
	StateFailed
)

var stateNames = [...]string{
	StateStart:                "Start",
	StateDetectTopology:       "DetectTopology",
	StateDismissAccountPicker: "DismissAccountPicker",
	StateEnterUsername:        "EnterUsername",
	StatePostUsername:         "PostUsername",
	StateEnterPassword:        "EnterPassword",
	StateMfaChallenge:         "MfaChallenge",
	StateStaySignedInPrompt:   "StaySignedInPrompt",
	StateAwaitLanding:         "AwaitLanding",
	StateAuthenticated:        "Authenticated",
	StateRedirected:           "Redirected",
	StateFailed:               "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateRedirected || s == StateFailed
}

// StateError is returned when a login stops in a state. Err carries the
// failure kind the executor classifies.
type StateError struct {
	State  State
	Reason string
	Err    error
}

func (e *StateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("login failed in %s: %s", e.State, e.Reason)
	}
	return fmt.Sprintf("login failed in %s: %s: %v", e.State, e.Reason, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }
