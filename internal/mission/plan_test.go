package mission_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/rfsensor/internal/mission"
	"github.com/danmuck/rfsensor/internal/testutil/testlog"
	"github.com/danmuck/rfsensor/internal/vehicle"
	"github.com/stretchr/testify/require"
)

const samplePlan = `
vehicles:
  1:
    - {latitude: 0, longitude: 0}
    - {latitude: 5, longitude: 0, type: wait, wait_id: 2, wait_waypoint: 1}
    - {latitude: 9, longitude: 9, type: home}
  2:
    - {latitude: 0, longitude: 5, type: 1, wait_count: 2}
`

func TestParsePlan(t *testing.T) {
	testlog.Start(t)
	plan, err := mission.ParsePlan([]byte(samplePlan))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, plan.IDs())

	one := plan.Vehicles[1]
	require.Len(t, one, 3)
	require.Equal(t, mission.WaypointPass, one[0].Type)
	require.Equal(t, -1, one[0].WaitWaypoint)
	require.Equal(t, 1, one[1].Index)
	require.Equal(t, 2, one[1].WaitID)
	require.Equal(t, 1, one[1].WaitWaypoint)
	require.Equal(t, mission.WaypointHome, one[2].Type)
	require.Equal(t, 1, one[2].ToID)

	two := plan.Vehicles[2]
	require.Equal(t, mission.WaypointWait, two[0].Type)
	require.Zero(t, two[0].WaitID)
}

func TestParsePlanRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	_, err := mission.ParsePlan([]byte("vehicles:\n  1:\n    - {type: loop}\n"))
	require.ErrorIs(t, err, mission.ErrInvalidWaypointType)

	_, err = mission.ParsePlan([]byte("vehicles:\n  0:\n    - {latitude: 1}\n"))
	require.Error(t, err)

	_, err = mission.ParsePlan([]byte("vehicles:\n  1:\n    - {lat: 1}\n"))
	require.Error(t, err)
}

func TestLoadPlanFromFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o644))
	plan, err := mission.LoadPlan(path)
	require.NoError(t, err)
	require.Len(t, plan.Vehicles, 2)

	_, err = mission.LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPlanMissionAddsCommands(t *testing.T) {
	testlog.Start(t)
	plan, err := mission.ParsePlan([]byte(samplePlan))
	require.NoError(t, err)

	v := vehicle.NewSim(vehicle.Config{ID: 1})
	m, err := mission.New(mission.KindPlan, mission.Deps{Vehicle: v, Plan: plan, ID: 1})
	require.NoError(t, err)
	require.NoError(t, m.Setup(context.Background()))
	require.Len(t, m.GetPoints(), 2)

	require.NoError(t, m.ArmAndTakeoff(context.Background()))
	require.Equal(t, 2, v.CountWaypoints())
	require.Equal(t, mission.Point{Latitude: 9, Longitude: 9}, v.Home())
	require.NoError(t, m.Start())

	_, err = mission.New(mission.KindPlan, mission.Deps{Vehicle: v, Plan: plan, ID: 3})
	require.ErrorIs(t, err, mission.ErrNoPlan)
}

func TestRecordPacketRoundTrip(t *testing.T) {
	testlog.Start(t)
	r := mission.Record{
		ToID: 2, Index: 4, Latitude: 1.5, Longitude: -2, Altitude: 3,
		Type: mission.WaypointWait, WaitID: 1, WaitCount: 2, WaitWaypoint: 6,
	}
	got, err := mission.RecordFromPacket(r.Packet(2))
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestParseWaypointType(t *testing.T) {
	testlog.Start(t)
	for raw, want := range map[string]mission.WaypointType{
		"pass": mission.WaypointPass,
		"WAIT": mission.WaypointWait,
		"2":    mission.WaypointHome,
	} {
		got, err := mission.ParseWaypointType(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}
	_, err := mission.ParseWaypointType("3")
	require.ErrorIs(t, err, mission.ErrInvalidWaypointType)
}
