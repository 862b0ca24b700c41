package insim

import "fmt"

// State flags
const (
	StateInGame  = 1
	StateReplay  = 2
	StatePaused  = 4
	StateShiftU  = 8
	StateDialog  = 16
	StateMulti   = 512
	StateVisible = 16384
)

type wireSta struct {
	Size         uint8
	Type         uint8
	ReqI         uint8
	Zero         uint8
	ReplaySpeed  float32
	Flags        uint16
	InGameCam    uint8
	ViewPLID     uint8
	NumP         uint8
	NumConns     uint8
	NumFinished  uint8
	RaceInProg   uint8
	QualMins     uint8
	RaceLaps     uint8
	Sp2          uint8
	ServerStatus uint8
	Track        [6]byte
	Weather      uint8
	Wind         uint8
}

// State is the simulator state as last reported.
type State struct {
	ReplaySpeed  float64
	Flags        uint16
	InGameCam    uint8
	ViewPLID     uint8
	NumPlayers   uint8
	NumConns     uint8
	NumFinished  uint8
	RaceInProg   uint8 // 0 no race, 1 race, 2 qualifying
	QualMins     uint8
	RaceLaps     uint8
	ServerStatus uint8
	Track        string
	Weather      uint8
	Wind         uint8
}

func (s State) Paused() bool {
	return s.Flags&StatePaused != 0
}

func (s State) String() string {
	return fmt.Sprintf("track=%v paused=%v players=%d race=%d", s.Track, s.Paused(), s.NumPlayers, s.RaceInProg)
}

func decodeState(packet []byte) (*State, error) {
	var sta wireSta
	if err := decode(packet, SizeSta, &sta); err != nil {
		return nil, err
	}
	return &State{
		ReplaySpeed:  float64(sta.ReplaySpeed),
		Flags:        sta.Flags,
		InGameCam:    sta.InGameCam,
		ViewPLID:     sta.ViewPLID,
		NumPlayers:   sta.NumP,
		NumConns:     sta.NumConns,
		NumFinished:  sta.NumFinished,
		RaceInProg:   sta.RaceInProg,
		QualMins:     sta.QualMins,
		RaceLaps:     sta.RaceLaps,
		ServerStatus: sta.ServerStatus,
		Track:        cString(sta.Track[:]),
		Weather:      sta.Weather,
		Wind:         sta.Wind,
	}, nil
}
