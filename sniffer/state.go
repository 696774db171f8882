package sniffer

// State is where the player is, as far as memory tells.
type State int32

const (
	None State = iota
	InMenus
	SongSelected
	SongStarting
	SongPlaying
	SongEnding
)

var stateNames = [...]string{"None", "InMenus", "SongSelected", "SongStarting", "SongPlaying", "SongEnding"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Playing covers every state between song selection and the song ending.
func (s State) Playing() bool {
	return s == SongStarting || s == SongPlaying || s == SongEnding
}
