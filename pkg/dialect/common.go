package dialect

// Message ids and CRC_EXTRA values below match MAVLink's common.xml so
// that frames produced by real ground-control or autopilot software
// decode correctly against this default dialect.
const (
	HeartbeatID         uint32 = 0
	SysStatusID         uint32 = 1
	ParamValueID        uint32 = 22
	GlobalPositionIntID uint32 = 33
	CommandLongID       uint32 = 76
	CommandAckID        uint32 = 77
)

// Heartbeat announces a node's presence, autopilot type and mode. It
// never carries a target, so it always routes as Broadcast.
type Heartbeat struct {
	CustomMode      uint32
	Type            uint8
	Autopilot       uint8
	BaseMode        uint8
	SystemStatus    uint8
	MavlinkVersion  uint8
}

// SysStatus reports onboard sensor and battery health. Broadcast.
type SysStatus struct {
	OnboardControlSensorsPresent uint32
	OnboardControlSensorsEnabled uint32
	OnboardControlSensorsHealth  uint32
	Load                         uint16
	VoltageBattery               uint16
	CurrentBattery               int16
	DropRateComm                 uint16
	ErrorsComm                   uint16
	ErrorsCount1                 uint16
	ErrorsCount2                 uint16
	ErrorsCount3                 uint16
	ErrorsCount4                 uint16
	BatteryRemaining             int8
}

// ParamValue answers a parameter read/request. Broadcast.
type ParamValue struct {
	ParamValue float32
	ParamCount uint16
	ParamIndex uint16
	ParamID    [16]byte
	ParamType  uint8
}

// GlobalPositionInt is a filtered global position estimate. Broadcast.
type GlobalPositionInt struct {
	TimeBootMs   uint32
	Lat          int32
	Lon          int32
	Alt          int32
	RelativeAlt  int32
	Vx           int16
	Vy           int16
	Vz           int16
	Hdg          uint16
}

// CommandLong requests a component to execute a command. Routed to the
// addressed component, per the target_system/target_component tags.
type CommandLong struct {
	Param1          float32
	Param2          float32
	Param3          float32
	Param4          float32
	Param5          float32
	Param6          float32
	Param7          float32
	Command         uint16
	TargetSystem    uint8 `mavlink:"target_system"`
	TargetComponent uint8 `mavlink:"target_component"`
	Confirmation    uint8
}

// CommandAck reports the result of a previously issued command. Base
// (non-extension) payload carries no target fields, so it broadcasts;
// real senders address it via the v2 extension fields this registry does
// not decode.
type CommandAck struct {
	Command uint16
	Result  uint8
}

// NewCommon returns the default "common" dialect: a Registry pre-loaded
// with the handful of common.xml messages mavrelay needs to exercise
// broadcast, system-targeted and component-targeted routing end to end.
func NewCommon() *Registry {
	r := NewRegistry("common")
	r.Register(HeartbeatID, 50, Heartbeat{})
	r.Register(SysStatusID, 124, SysStatus{})
	r.Register(ParamValueID, 220, ParamValue{})
	r.Register(GlobalPositionIntID, 104, GlobalPositionInt{})
	r.Register(CommandLongID, 152, CommandLong{})
	r.Register(CommandAckID, 143, CommandAck{})
	return r
}
