package ws

import (
	"sync"
	"testing"

	"github.com/judgegodwins/chess-relay/chessrules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatAssignment(t *testing.T) {
	t.Run("creator preference and opponent arrival", func(t *testing.T) {
		m := newTestManager(t)

		a, room, role := connect(m, "r1", "A", PreferWhite)
		require.Equal(t, RoleWhite, role)

		initA := only[PayloadInit](t, a, EventInit)
		assert.Equal(t, RoleWhite, initA.Color)
		assert.False(t, initA.OpponentConnected)
		assert.False(t, initA.GameStarted)
		assert.Equal(t, StatusWaiting, initA.Status)
		assert.Empty(t, initA.Moves)

		b, _, role := connect(m, "r1", "B", PreferBlack)
		require.Equal(t, RoleBlack, role)

		evts := drain(b)
		require.Equal(t, []string{EventInit, EventGameStarted}, eventTypes(evts))

		initB := decode[PayloadInit](t, evts[0])
		assert.Equal(t, RoleBlack, initB.Color)
		assert.True(t, initB.OpponentConnected)
		assert.True(t, initB.GameStarted)

		started := only[PayloadGameStarted](t, a, EventGameStarted)
		assert.Equal(t, PayloadGameStarted{WhitePlayer: "A", BlackPlayer: "B"}, started)
		assert.Equal(t, started, decode[PayloadGameStarted](t, evts[1]))

		assert.Equal(t, StatusInProgress, room.Status())
	})

	t.Run("black preference", func(t *testing.T) {
		m := newTestManager(t)

		_, _, role := connect(m, "r1", "A", PreferBlack)
		require.Equal(t, RoleBlack, role)

		_, _, role = connect(m, "r1", "B", PreferBlack)
		require.Equal(t, RoleWhite, role)
	})

	t.Run("random preference follows the coin", func(t *testing.T) {
		for _, tc := range []struct {
			coin bool
			want Role
		}{
			{coin: true, want: RoleWhite},
			{coin: false, want: RoleBlack},
		} {
			coin := tc.coin
			m := newTestManager(t, WithCoin(func() bool { return coin }))

			_, _, role := connect(m, "r1", "A", PreferRandom)
			require.Equal(t, tc.want, role)
		}
	})

	t.Run("preference of later joiners is ignored", func(t *testing.T) {
		m := newTestManager(t)

		connect(m, "r1", "A", PreferWhite)
		_, _, role := connect(m, "r1", "B", PreferWhite)
		require.Equal(t, RoleBlack, role)
	})

	t.Run("third player becomes a spectator", func(t *testing.T) {
		m := newTestManager(t)

		a, room, _ := connect(m, "r1", "A", PreferWhite)
		connect(m, "r1", "B", "")
		drain(a)

		c, _, role := connect(m, "r1", "C", PreferWhite)
		require.Equal(t, RoleSpectator, role)

		initC := only[PayloadInit](t, c, EventInit)
		assert.Equal(t, RoleSpectator, initC.Color)
		assert.True(t, initC.GameStarted)
		assert.Equal(t, "A", initC.WhitePlayer)
		assert.Equal(t, "B", initC.BlackPlayer)

		// no second game_started for a spectator
		assert.Empty(t, drain(a))

		snap := room.Snapshot()
		assert.Equal(t, "A", snap.White)
		assert.Equal(t, "B", snap.Black)
		assert.Equal(t, 3, snap.Connections)
	})

	t.Run("reconnect with the same player id keeps the seat", func(t *testing.T) {
		m := newTestManager(t)

		a1, room, _ := connect(m, "r1", "A", PreferWhite)
		b, _, _ := connect(m, "r1", "B", "")
		play(t, room, a1, b, "e2e4", "e7e5")

		a2, _, role := connect(m, "r1", "A", PreferBlack)
		require.Equal(t, RoleWhite, role)

		initA2 := only[PayloadInit](t, a2, EventInit)
		assert.Equal(t, []chessrules.Move{mv("e2e4"), mv("e7e5")}, initA2.Moves)
		assert.Equal(t, room.FEN(), initA2.FEN)

		// the old tab closing does not free the seat held by the new one
		m.Leave(a1)
		assert.Equal(t, "A", room.Snapshot().White)

		_, err := room.TryMove(a2, mv("g1f3"))
		require.NoError(t, err)
	})
}

func TestTryMove(t *testing.T) {
	setup := func(t *testing.T) (*Manager, *Room, *Client, *Client) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)
		b, _, _ := connect(m, "r1", "B", "")
		drain(a)
		drain(b)
		return m, room, a, b
	}

	t.Run("move is relayed to everyone but the mover", func(t *testing.T) {
		m, room, a, b := setup(t)
		s, _, _ := connect(m, "r1", "S", "")
		drain(s)

		applied, err := room.TryMove(a, chessrules.Move{From: "e2", To: "e4"})
		require.NoError(t, err)
		require.Equal(t, mv("e2e4"), applied)

		assert.Empty(t, drain(a))
		assert.Equal(t, PayloadMove{Move: mv("e2e4")}, only[PayloadMove](t, b, EventMove))
		assert.Equal(t, PayloadMove{Move: mv("e2e4")}, only[PayloadMove](t, s, EventMove))
		assert.Equal(t, []chessrules.Move{mv("e2e4")}, room.MoveLog())
	})

	t.Run("out of turn move is dropped", func(t *testing.T) {
		_, room, a, b := setup(t)
		fen := room.FEN()

		_, err := room.TryMove(b, mv("e7e5"))
		require.ErrorIs(t, err, ErrNotYourTurn)

		play(t, room, a, b, "e2e4")
		drain(b)

		_, err = room.TryMove(a, mv("d2d4"))
		require.ErrorIs(t, err, ErrNotYourTurn)

		assert.Empty(t, drain(a))
		assert.Empty(t, drain(b))
		assert.Len(t, room.MoveLog(), 1)
		assert.NotEqual(t, fen, room.FEN())
	})

	t.Run("spectator move is a no-op", func(t *testing.T) {
		m, room, a, b := setup(t)
		s, _, _ := connect(m, "r1", "S", "")
		drain(s)
		fen := room.FEN()

		_, err := room.TryMove(s, mv("e2e4"))
		require.ErrorIs(t, err, ErrSpectator)

		assert.Equal(t, fen, room.FEN())
		assert.Empty(t, room.MoveLog())
		assert.Empty(t, drain(a))
		assert.Empty(t, drain(b))
	})

	t.Run("illegal move is dropped", func(t *testing.T) {
		_, room, a, b := setup(t)

		_, err := room.TryMove(a, mv("e2e5"))
		require.ErrorIs(t, err, chessrules.ErrIllegalMove)

		_, err = room.TryMove(a, chessrules.Move{From: "x", To: "e4"})
		require.ErrorIs(t, err, chessrules.ErrMalformedMove)

		assert.Empty(t, room.MoveLog())
		assert.Empty(t, drain(b))
	})

	t.Run("moves wait for the opponent", func(t *testing.T) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)

		_, err := room.TryMove(a, mv("e2e4"))
		require.ErrorIs(t, err, ErrGameNotActive)
	})

	t.Run("checkmate concludes the game", func(t *testing.T) {
		m, room, a, b := setup(t)
		s, _, _ := connect(m, "r1", "S", "")
		drain(s)

		play(t, room, a, b, "f2f3", "e7e5", "g2g4")
		drain(a)
		drain(b)
		drain(s)

		_, err := room.TryMove(b, mv("d8h4"))
		require.NoError(t, err)

		evtsA := drain(a)
		require.Equal(t, []string{EventMove, EventGameOver}, eventTypes(evtsA))

		over := decode[PayloadGameOver](t, evtsA[1])
		assert.Equal(t, chessrules.ReasonCheckmate, over.Reason)
		assert.Equal(t, chessrules.Black, over.Winner)
		assert.Equal(t, "Checkmate. Black wins", over.Result)

		// the mover only gets game_over
		assert.Equal(t, over, only[PayloadGameOver](t, b, EventGameOver))

		evtsS := drain(s)
		require.Equal(t, []string{EventMove, EventGameOver}, eventTypes(evtsS))

		assert.Equal(t, StatusConcluded, room.Status())

		_, err = room.TryMove(a, mv("a2a3"))
		require.ErrorIs(t, err, ErrGameNotActive)
	})

	t.Run("move log replays to the live position", func(t *testing.T) {
		_, room, a, b := setup(t)
		play(t, room, a, b, "d2d4", "d7d5", "c2c4", "e7e6", "b1c3", "g8f6", "c1g5", "f8e7")

		replayed, err := chessrules.Replay(room.MoveLog())
		require.NoError(t, err)
		assert.Equal(t, room.FEN(), replayed.FEN())
	})

	t.Run("racing moves from both seats", func(t *testing.T) {
		_, room, a, b := setup(t)

		var wg sync.WaitGroup
		errs := make([]error, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = room.TryMove(a, mv("e2e4"))
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = room.TryMove(b, mv("e7e5"))
		}()
		wg.Wait()

		require.NoError(t, errs[0])

		// black may have been first in line and been refused, or moved right after white
		if errs[1] != nil {
			require.ErrorIs(t, errs[1], ErrNotYourTurn)
			assert.Equal(t, []chessrules.Move{mv("e2e4")}, room.MoveLog())
		} else {
			assert.Equal(t, []chessrules.Move{mv("e2e4"), mv("e7e5")}, room.MoveLog())
		}
	})
}

func TestRematch(t *testing.T) {
	concluded := func(t *testing.T) (*Manager, *Room, *Client, *Client) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)
		b, _, _ := connect(m, "r1", "B", "")
		play(t, room, a, b, "f2f3", "e7e5", "g2g4", "d8h4")
		drain(a)
		drain(b)
		require.Equal(t, StatusConcluded, room.Status())
		return m, room, a, b
	}

	t.Run("request then accept swaps seats", func(t *testing.T) {
		m, room, a, b := concluded(t)
		s, _, _ := connect(m, "r1", "S", "")
		drain(s)

		started, err := room.VoteRematch(a, true)
		require.NoError(t, err)
		require.False(t, started)

		req := only[PayloadPlayer](t, b, EventRematchRequest)
		assert.Equal(t, "A", req.PlayerID)
		assert.Empty(t, drain(a))
		assert.Empty(t, drain(s))
		assert.Equal(t, []string{"A"}, room.RematchVotes())

		started, err = room.VoteRematch(b, false)
		require.NoError(t, err)
		require.True(t, started)

		rsA := only[PayloadRematchStarted](t, a, EventRematchStarted)
		rsB := only[PayloadRematchStarted](t, b, EventRematchStarted)
		rsS := only[PayloadRematchStarted](t, s, EventRematchStarted)

		assert.Equal(t, RoleBlack, rsA.Color)
		assert.Equal(t, RoleWhite, rsB.Color)
		assert.Equal(t, RoleSpectator, rsS.Color)
		assert.Equal(t, "B", rsA.WhitePlayer)
		assert.Equal(t, "A", rsA.BlackPlayer)

		assert.Equal(t, RoleBlack, a.Role())
		assert.Equal(t, RoleWhite, b.Role())
		assert.Empty(t, room.MoveLog())
		assert.Empty(t, room.RematchVotes())
		assert.Equal(t, StatusInProgress, room.Status())
		assert.Equal(t, chessrules.NewPosition().FEN(), room.FEN())

		// B now moves first
		_, err = room.TryMove(a, mv("e2e4"))
		require.ErrorIs(t, err, ErrNotYourTurn)
		_, err = room.TryMove(b, mv("e2e4"))
		require.NoError(t, err)
	})

	t.Run("both request", func(t *testing.T) {
		_, room, a, b := concluded(t)

		_, err := room.VoteRematch(a, true)
		require.NoError(t, err)
		drain(b)

		started, err := room.VoteRematch(b, true)
		require.NoError(t, err)
		require.True(t, started)

		assert.Equal(t, []string{EventRematchStarted}, eventTypes(drain(a)))
	})

	t.Run("repeated vote from one player is not enough", func(t *testing.T) {
		_, room, a, _ := concluded(t)

		for i := 0; i < 3; i++ {
			started, err := room.VoteRematch(a, false)
			require.NoError(t, err)
			require.False(t, started)
		}
		assert.Equal(t, StatusConcluded, room.Status())
	})

	t.Run("decline clears votes", func(t *testing.T) {
		_, room, a, b := concluded(t)

		_, err := room.VoteRematch(a, true)
		require.NoError(t, err)
		drain(b)

		require.NoError(t, room.DeclineRematch(b))

		declined := only[PayloadPlayer](t, a, EventRematchDeclined)
		assert.Equal(t, "B", declined.PlayerID)
		assert.Empty(t, room.RematchVotes())
		assert.Equal(t, StatusConcluded, room.Status())

		// a fresh accept alone does not restart
		started, err := room.VoteRematch(b, false)
		require.NoError(t, err)
		require.False(t, started)
	})

	t.Run("not available during a game", func(t *testing.T) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)
		connect(m, "r1", "B", "")

		_, err := room.VoteRematch(a, true)
		require.ErrorIs(t, err, ErrRematchNotAvailable)
		require.ErrorIs(t, room.DeclineRematch(a), ErrRematchNotAvailable)
	})

	t.Run("spectators cannot vote", func(t *testing.T) {
		m, room, _, _ := concluded(t)
		s, _, _ := connect(m, "r1", "S", "")

		_, err := room.VoteRematch(s, true)
		require.ErrorIs(t, err, ErrSpectator)
		assert.Empty(t, room.RematchVotes())
	})

	t.Run("disconnect discards a pending vote", func(t *testing.T) {
		m, room, a, b := concluded(t)

		_, err := room.VoteRematch(a, true)
		require.NoError(t, err)
		assert.Equal(t, "A", only[PayloadPlayer](t, b, EventRematchRequest).PlayerID)

		m.Leave(a)
		assert.Empty(t, room.RematchVotes())

		left := only[PayloadPlayerLeft](t, b, EventPlayerLeft)
		assert.Equal(t, PayloadPlayerLeft{PlayerID: "A", Color: RoleWhite}, left)

		_, err = room.VoteRematch(b, false)
		require.ErrorIs(t, err, ErrRematchNotAvailable)
	})

	t.Run("new opponent after a concluded game gets a fresh board", func(t *testing.T) {
		m, room, a, b := concluded(t)

		m.Leave(a)
		drain(b)

		c, _, role := connect(m, "r1", "C", "")
		require.Equal(t, RoleWhite, role)

		evtsC := drain(c)
		require.Equal(t, []string{EventInit, EventGameStarted}, eventTypes(evtsC))

		initC := decode[PayloadInit](t, evtsC[0])
		assert.Empty(t, initC.Moves)
		assert.Equal(t, StatusInProgress, initC.Status)

		evts := drain(b)
		require.Equal(t, []string{EventGameStarted}, eventTypes(evts))
		assert.Equal(t, PayloadGameStarted{WhitePlayer: "C", BlackPlayer: "B"}, decode[PayloadGameStarted](t, evts[0]))

		_, err := room.TryMove(c, mv("e2e4"))
		require.NoError(t, err)
	})
}

func TestLeave(t *testing.T) {
	t.Run("seat is vacated and room removed when empty", func(t *testing.T) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)
		b, _, _ := connect(m, "r1", "B", "")
		play(t, room, a, b, "e2e4")
		drain(a)

		m.Leave(b)

		left := only[PayloadPlayerLeft](t, a, EventPlayerLeft)
		assert.Equal(t, RoleBlack, left.Color)
		assert.Equal(t, "", room.Snapshot().Black)
		assert.Equal(t, StatusInProgress, room.Status())

		_, ok := m.Room("r1")
		require.True(t, ok)

		m.Leave(a)
		_, ok = m.Room("r1")
		require.False(t, ok)

		// leaving twice is harmless
		m.Leave(a)
		m.Leave(b)
	})

	t.Run("new player takes over a vacated seat mid game", func(t *testing.T) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)
		b, _, _ := connect(m, "r1", "B", "")
		play(t, room, a, b, "e2e4")

		m.Leave(b)
		drain(a)

		c, _, role := connect(m, "r1", "C", PreferWhite)
		require.Equal(t, RoleBlack, role)

		evtsC := drain(c)
		require.Equal(t, []string{EventInit, EventGameStarted}, eventTypes(evtsC))
		assert.Equal(t, []chessrules.Move{mv("e2e4")}, decode[PayloadInit](t, evtsC[0]).Moves)

		assert.Equal(t, []string{EventGameStarted}, eventTypes(drain(a)))

		_, err := room.TryMove(c, mv("e7e5"))
		require.NoError(t, err)

		// the old connection of B no longer holds the seat
		_, err = room.TryMove(b, mv("d7d5"))
		require.Error(t, err)
	})

	t.Run("game pauses when both seats are vacated", func(t *testing.T) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)
		b, _, _ := connect(m, "r1", "B", "")
		s, _, _ := connect(m, "r1", "S", "")
		play(t, room, a, b, "e2e4")

		m.Leave(a)
		assert.Equal(t, StatusInProgress, room.Status())

		m.Leave(b)
		assert.Equal(t, StatusWaiting, room.Status())
		drain(s)

		// a lone newcomer cannot play on against an empty seat
		c, _, role := connect(m, "r1", "C", "")
		require.Equal(t, RoleWhite, role)

		_, err := room.TryMove(c, mv("g1f3"))
		require.ErrorIs(t, err, ErrGameNotActive)

		d, _, role := connect(m, "r1", "D", "")
		require.Equal(t, RoleBlack, role)
		assert.Equal(t, []string{EventGameStarted}, eventTypes(drain(s)))
		assert.Equal(t, StatusInProgress, room.Status())

		_, err = room.TryMove(d, mv("e7e5"))
		require.NoError(t, err)
	})

	t.Run("spectator leaving keeps seats", func(t *testing.T) {
		m := newTestManager(t)
		a, room, _ := connect(m, "r1", "A", PreferWhite)
		connect(m, "r1", "B", "")
		s, _, _ := connect(m, "r1", "S", "")
		drain(a)

		m.Leave(s)

		assert.Empty(t, drain(a))
		snap := room.Snapshot()
		assert.Equal(t, "A", snap.White)
		assert.Equal(t, "B", snap.Black)
		assert.Equal(t, 2, snap.Connections)
	})
}
