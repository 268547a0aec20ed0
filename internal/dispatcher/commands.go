package dispatcher

// Commands understood by the race service. Input lines and simulation
// callbacks are both turned into events carrying one of these.
const (
	CmdControl     = ":CONTROL:"      // Args: direction, "press"|"release"
	CmdRaceStart   = ":RACE:START:"   // Args: optional player name
	CmdRaceRestart = ":RACE:RESTART:" // no args
	CmdRaceEnd     = ":RACE:END:"     // no args
	CmdResize      = ":RESIZE:"       // Args: width, height
	CmdPosition    = ":POSITION:"     // Payload: core.PositionUpdate
	CmdLap         = ":LAP:"          // Payload: core.LapCompleted
	CmdFinish      = ":FINISH:"       // Payload: core.RaceFinished
)
