package voice

// Event is one step of a voice turn as seen by the consumer. The set of
// implementations is closed: the unexported marker method prevents others.
type Event interface {
	event()
}

// UserTranscript carries the transcription of the user's utterance.
type UserTranscript struct {
	Text string
}

// Sentence announces a completed sentence of the reply that is now being
// synthesized.
type Sentence struct {
	Seq  int
	Text string
}

// Audio is one chunk of synthesized speech for sentence Seq. Chunks of a
// sentence arrive in provider order and all of them precede those of Seq+1.
type Audio struct {
	Seq  int
	Data []byte
}

// Transcript carries the full reply text once generation finished.
type Transcript struct {
	Text string
}

// Done terminates a successful turn.
type Done struct{}

// Error terminates a failed turn. Message is safe to show to clients, Err
// holds the underlying cause.
type Error struct {
	Message string
	Err     error
}

func (e Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e Error) Unwrap() error { return e.Err }

func (UserTranscript) event() {}
func (Sentence) event()       {}
func (Audio) event()          {}
func (Transcript) event()     {}
func (Done) event()           {}
func (Error) event()          {}

var (
	_ Event = UserTranscript{}
	_ Event = Sentence{}
	_ Event = Audio{}
	_ Event = Transcript{}
	_ Event = Done{}
	_ Event = Error{}
)
