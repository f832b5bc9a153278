package state

// ItemType identifies one of the three exit-panel components.
type ItemType string

const (
	ItemBattery      ItemType = "BATTERY"
	ItemBulb         ItemType = "BULB"
	ItemSwitchHandle ItemType = "SWITCH_HANDLE"
)

// ItemTypes lists every component in installation-check order.
var ItemTypes = []ItemType{ItemBattery, ItemBulb, ItemSwitchHandle}

// Valid reports whether t names a known component.
func (t ItemType) Valid() bool {
	switch t {
	case ItemBattery, ItemBulb, ItemSwitchHandle:
		return true
	default:
		return false
	}
}

// Role is an exclusive control capability held by one player.
type Role string

const (
	RoleNone     Role = ""
	RoleMove     Role = "MOVE"
	RoleInteract Role = "INTERACT"
	RoleDash     Role = "DASH"
	RoleSprint   Role = "SPRINT"
	RoleDrop     Role = "DROP"
)

// InputKind names one field of an Input record for role gating.
type InputKind int

const (
	InputMove InputKind = iota
	InputInteract
	InputDash
	InputSprint
	InputDrop
)

// Permits reports whether the holder of r may drive the given input kind.
func (r Role) Permits(kind InputKind) bool {
	switch kind {
	case InputMove:
		return r == RoleMove
	case InputInteract:
		return r == RoleInteract
	case InputDash:
		return r == RoleDash
	case InputSprint:
		return r == RoleSprint
	case InputDrop:
		return r == RoleDrop
	default:
		return false
	}
}

// Phase is the lifecycle stage of a room or a round.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhaseVoting  Phase = "voting"
	PhaseWon     Phase = "won"
	PhaseLost    Phase = "lost"
	PhaseEnded   Phase = "ended"
)

// Terminal reports whether no further ticks should run in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseWon || p == PhaseLost || p == PhaseEnded
}

// Demand is what the adversary asks for after a catch: an exact item type,
// DemandAny, or DemandImpossible.
type Demand string

const (
	DemandNone       Demand = ""
	DemandAny        Demand = "ANY"
	DemandImpossible Demand = "IMPOSSIBLE"
)

// DemandFor wraps an item type as an exact demand.
func DemandFor(t ItemType) Demand { return Demand(t) }

// ItemType returns the exact item demanded, if any.
func (d Demand) ItemType() (ItemType, bool) {
	t := ItemType(d)
	return t, t.Valid()
}

// Satisfiable reports whether some inventory item could meet the demand.
func (d Demand) Satisfiable() bool {
	return d != DemandNone && d != DemandImpossible
}

// VoteChoice is a ballot cast while the avatar is caught.
type VoteChoice string

const (
	VoteGive   VoteChoice = "give"
	VoteRefuse VoteChoice = "refuse"
)

// ParseVoteChoice validates a ballot received from a client.
func ParseVoteChoice(value string) (VoteChoice, bool) {
	switch VoteChoice(value) {
	case VoteGive, VoteRefuse:
		return VoteChoice(value), true
	default:
		return "", false
	}
}
