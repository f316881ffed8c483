package domain

// State is the reconciler's position in the lookup/mutate cycle.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateFound
	StateNotFoundOfferCreate
	StateMutating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateFound:
		return "found"
	case StateNotFoundOfferCreate:
		return "not_found_offer_create"
	case StateMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

// NoticeKind classifies a user-facing notice.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeError
)

// Notice is the last message the presentation layer should surface (toast, status line).
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Snapshot is an immutable view of one operator session.
type Snapshot struct {
	State State
	// Query is the phone number as entered or supplied by the host.
	Query string
	// Phone is the normalized form of Query used for the last request; empty if none was valid.
	Phone string
	// Record is the displayed consent record, nil when none is shown.
	Record *Record
	// Permitted may diverge from Record.Permitted only while a mutation is in flight or
	// while the create form's switch is being edited.
	Permitted      bool
	Loading        bool
	ShowCreateForm bool
	// OfferPhone is the normalized phone the last lookup reported as unknown. It is the only phone
	// a create may be issued for, and is empty whenever ShowCreateForm is false.
	OfferPhone string
	Notice         *Notice
}

// Clone returns a deep copy so callers cannot mutate session state through shared pointers.
func (s Snapshot) Clone() Snapshot {
	if s.Record != nil {
		r := *s.Record
		s.Record = &r
	}
	if s.Notice != nil {
		n := *s.Notice
		s.Notice = &n
	}
	return s
}
