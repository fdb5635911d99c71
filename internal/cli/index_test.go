package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kvorm/internal/store"
)

// seedGarage saves two cars and one driver into the database named by db.
func seedGarage(t *testing.T, db []string) {
	t.Helper()
	saves := [][]string{
		{"Car", `{"id": 1, "color": "red", "manufactureDate": "2013-01-01T00:00:00Z"}`},
		{"Car", `{"id": 2, "color": "red", "manufactureDate": "1999-06-01T00:00:00Z"}`},
		{"Driver", `{"handle": "jim", "team": "williams", "rating": 9.5, "active": true}`},
	}
	for _, s := range saves {
		_, err := execute(t, append(db, "save", garageDir, s[0], "--data", s[1])...)
		require.NoError(t, err, s[1])
	}
}

func TestMembers(t *testing.T) {
	db := sqliteArgs(t)
	seedGarage(t, db)

	out, err := execute(t, append(db, "members", "color", "red")...)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", out)

	out, err = execute(t, append(db, "members", "active", "1")...)
	require.NoError(t, err)
	assert.Equal(t, "jim\n", out)

	out, err = execute(t, append(db, "--format", "json", "members", "color", "blue")...)
	require.NoError(t, err)
	var resp struct {
		Data IndexResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "color:blue", resp.Data.Key)
	assert.Empty(t, resp.Data.IDs)
}

func TestRange(t *testing.T) {
	db := sqliteArgs(t)
	seedGarage(t, db)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "all", args: []string{"range", "manufactureDate"}, want: "2\n1\n"},
		{name: "min", args: []string{"range", "manufactureDate", "--min", "1000000000"}, want: "1\n"},
		{name: "since", args: []string{"range", "manufactureDate", "--since", "2000-01-01T00:00:00Z"}, want: "1\n"},
		{name: "until", args: []string{"range", "manufactureDate", "--until", "2000-01-01T00:00:00Z"}, want: "2\n"},
		{name: "inclusive", args: []string{"range", "leaderboard", "--min", "9.5", "--max", "9.5"}, want: "jim\n"},
		{name: "missing index", args: []string{"range", "nothing"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append(db, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRange_BadBounds(t *testing.T) {
	tests := []struct {
		name string
		opts RangeOptions
		msg  string
	}{
		{name: "since", opts: RangeOptions{Since: "yesterday"}, msg: "--since"},
		{name: "until", opts: RangeOptions{Max: store.MaxScore, Until: "2020-13-01T00:00:00Z"}, msg: "--until"},
		{name: "empty", opts: RangeOptions{Min: 5, Max: 1}, msg: "empty range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.opts.bounds()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestKeys(t *testing.T) {
	db := sqliteArgs(t)
	seedGarage(t, db)

	out, err := execute(t, append(db, "keys", "Car:*")...)
	require.NoError(t, err)
	assert.Equal(t, "Car:1 (hash)\nCar:2 (hash)\n", out)

	out, err = execute(t, append(db, "keys", "--dump", "leaderboard")...)
	require.NoError(t, err)
	assert.Equal(t, "leaderboard (zset)\n  jim: 9.5\n", out)

	out, err = execute(t, append(db, "keys", "--dump", "drivers_by_team:*")...)
	require.NoError(t, err)
	assert.Equal(t, "drivers_by_team:williams (set)\n  jim\n", out)
}

func TestKeys_JSON(t *testing.T) {
	db := sqliteArgs(t)
	seedGarage(t, db)

	out, err := execute(t, append(db, "--format", "json", "keys")...)
	require.NoError(t, err)

	var resp struct {
		Data []store.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	keys := make([]string, 0, len(resp.Data))
	for _, e := range resp.Data {
		keys = append(keys, e.Key)
		assert.Nil(t, e.Hash, e.Key)
	}
	assert.Equal(t, []string{
		"Car:1", "Car:2",
		"active:1",
		"color:red",
		"driver:jim",
		"drivers_by_team:williams",
		"leaderboard",
		"manufactureDate",
	}, keys)
}

func TestKeys_MemoryDriver(t *testing.T) {
	// Every invocation opens its own memory store.
	_, err := execute(t, "--driver", "memory", "save", garageDir, "Car", "--data", `{"id": 1}`)
	require.NoError(t, err)

	out, err := execute(t, "--driver", "memory", "keys")
	require.NoError(t, err)
	assert.Empty(t, out)
}
