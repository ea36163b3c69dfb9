package bus

import "fmt"

// Channel names are templated per spec.md §6. Gov is the process-wide
// prefix (the CLI's --prefix); G, S, O, D, T name a governor, state,
// transition origin, device, and destination respectively.

func GlobalActiveSel(prefix string) string  { return fmt.Sprintf("%sActive-Sel", prefix) }
func GlobalConfigSel(prefix string) string  { return fmt.Sprintf("%sConfig-Sel", prefix) }
func GlobalAbortCmd(prefix string) string   { return fmt.Sprintf("%sCmd:Abort-Cmd", prefix) }
func GlobalKillCmd(prefix string) string    { return fmt.Sprintf("%sCmd:Kill-Cmd", prefix) }

func EngineAbortCmd(prefix, gov string) string  { return fmt.Sprintf("%s:%sCmd:Abort-Cmd", prefix, gov) }
func EngineGoCmd(prefix, gov string) string     { return fmt.Sprintf("%s:%sCmd:Go-Cmd", prefix, gov) }
func EngineStatusSts(prefix, gov string) string { return fmt.Sprintf("%s:%sSts:Status-Sts", prefix, gov) }
func EngineMsgSts(prefix, gov string) string    { return fmt.Sprintf("%s:%sSts:Msg-Sts", prefix, gov) }
func EngineStatesI(prefix, gov string) string   { return fmt.Sprintf("%s:%sSts:States-I", prefix, gov) }
func EngineDevsI(prefix, gov string) string     { return fmt.Sprintf("%s:%sSts:Devs-I", prefix, gov) }
func EngineStateI(prefix, gov string) string    { return fmt.Sprintf("%s:%sSts:State-I", prefix, gov) }
func EngineReachI(prefix, gov string) string    { return fmt.Sprintf("%s:%sSts:Reach-I", prefix, gov) }
func EngineBusySts(prefix, gov string) string   { return fmt.Sprintf("%s:%sSts:Busy-Sts", prefix, gov) }

func StateActiveSts(prefix, gov, state string) string {
	return fmt.Sprintf("%s:%s-St:%sSts:Active-Sts", prefix, gov, state)
}

func StateReachSts(prefix, gov, state string) string {
	return fmt.Sprintf("%s:%s-St:%sSts:Reach-Sts", prefix, gov, state)
}

func StateDeviceLowLimit(prefix, gov, state, device string) string {
	return fmt.Sprintf("%s:%s-St:%sLLim:%s-Pos", prefix, gov, state, device)
}

func StateDeviceHighLimit(prefix, gov, state, device string) string {
	return fmt.Sprintf("%s:%s-St:%sHLim:%s-Pos", prefix, gov, state, device)
}

func TransitionActiveSts(prefix, gov, origin, dest string) string {
	return fmt.Sprintf("%s:%s-Tr:%s-%sSts:Active-Sts", prefix, gov, origin, dest)
}

func TransitionReachSts(prefix, gov, origin, dest string) string {
	return fmt.Sprintf("%s:%s-Tr:%s-%sSts:Reach-Sts", prefix, gov, origin, dest)
}

func DeviceTargetsI(prefix, gov, device string) string {
	return fmt.Sprintf("%s:%s-Dev:%sSts:Tgts-I", prefix, gov, device)
}

func DevicePositionPos(prefix, gov, device, position string) string {
	return fmt.Sprintf("%s:%s-Dev:%sPos:%s-Pos", prefix, gov, device, position)
}
