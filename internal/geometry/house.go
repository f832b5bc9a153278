package geometry

import "swaphouse/server/internal/state"

func rect(x, y, w, h float64) state.Rect {
	return state.Rect{X: x, Y: y, Width: w, Height: h}
}

func vec(x, y float64) state.Vec2 {
	return state.Vec2{X: x, Y: y}
}

// Default returns the built-in seven-room house. Each call returns a fresh
// copy so callers may not alias each other's slices.
func Default() *Table {
	return &Table{
		Width:  700,
		Height: 550,
		Rooms: []RoomArea{
			{ID: "start", Name: "Start Room", Area: rect(50, 50, 180, 140)},
			{ID: "kitchen", Name: "Kitchen", Area: rect(260, 50, 180, 140)},
			{ID: "bedroom", Name: "Bedroom", Area: rect(470, 50, 180, 140)},
			{ID: "hallway", Name: "Hallway", Area: rect(50, 220, 180, 140)},
			{ID: "storage", Name: "Storage", Area: rect(260, 220, 180, 140)},
			{ID: "fuse", Name: "Fuse Room", Area: rect(470, 220, 180, 140)},
			{ID: "exit", Name: "Exit", Area: rect(470, 390, 180, 120)},
		},
		Walls: []state.Rect{
			// outer shell
			rect(40, 40, 620, 10),
			rect(40, 40, 10, 330),
			rect(40, 360, 420, 10),
			rect(450, 200, 10, 170),
			rect(650, 40, 10, 330),
			rect(460, 380, 10, 140),
			rect(460, 510, 200, 10),
			rect(650, 370, 10, 150),

			// first row dividers
			rect(230, 40, 10, 100),
			rect(230, 160, 10, 40),
			rect(440, 40, 10, 100),
			rect(440, 160, 10, 40),

			// second row dividers
			rect(230, 200, 10, 100),
			rect(230, 320, 10, 50),
			rect(440, 200, 10, 100),
			rect(440, 320, 10, 50),

			// between rows
			rect(40, 200, 100, 10),
			rect(160, 200, 80, 10),
			rect(240, 200, 100, 10),
			rect(360, 200, 90, 10),
			rect(450, 200, 100, 10),
			rect(570, 200, 90, 10),

			// fuse room to exit
			rect(450, 370, 100, 10),
			rect(570, 370, 90, 10),
		},
		Doors: []Door{
			{Area: rect(230, 100, 10, 60), Connects: [2]string{"start", "kitchen"}},
			{Area: rect(440, 100, 10, 60), Connects: [2]string{"kitchen", "bedroom"}},
			{Area: rect(230, 220, 10, 80), Connects: [2]string{"hallway", "storage"}},
			{Area: rect(440, 220, 10, 80), Connects: [2]string{"storage", "fuse"}},
			{Area: rect(100, 200, 60, 10), Connects: [2]string{"start", "hallway"}},
			{Area: rect(300, 200, 60, 10), Connects: [2]string{"kitchen", "storage"}},
			{Area: rect(510, 200, 60, 10), Connects: [2]string{"bedroom", "fuse"}},
			{Area: rect(510, 370, 60, 10), Connects: [2]string{"fuse", "exit"}},
		},
		SpawnPoints: []SpawnPoint{
			{Position: vec(100, 100), Room: "start", Allowed: []state.ItemType{state.ItemBattery, state.ItemBulb}},
			{Position: vec(300, 100), Room: "kitchen", Allowed: []state.ItemType{state.ItemBattery, state.ItemSwitchHandle}},
			{Position: vec(510, 100), Room: "bedroom", Allowed: []state.ItemType{state.ItemBulb, state.ItemSwitchHandle}},
			{Position: vec(100, 280), Room: "hallway", Allowed: []state.ItemType{state.ItemBattery, state.ItemBulb}},
			{Position: vec(300, 280), Room: "storage", Allowed: []state.ItemType{state.ItemBattery, state.ItemBulb, state.ItemSwitchHandle}},
			{Position: vec(510, 280), Room: "fuse", Allowed: []state.ItemType{state.ItemSwitchHandle, state.ItemBulb}},
		},
		PatrolPath: []state.Vec2{
			vec(300, 100),
			vec(510, 100),
			vec(510, 280),
			vec(300, 280),
			vec(100, 280),
			vec(100, 100),
			vec(300, 100),
		},
		ExitZone:       rect(520, 430, 80, 60),
		ExitPanel:      rect(480, 400, 40, 80),
		AvatarStart:    vec(140, 120),
		AdversaryStart: AdversaryStart{Position: vec(300, 280), PathIndex: 3},
	}
}
