package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cpgdrv/cluster/pkg/cluster/types"
)

func TestLocal_JoinDeliversConfChgToAllMembers(t *testing.T) {
	hub := NewCluster()
	a := hub.Join(1)

	chg := <-a.ConfChg()
	require.Equal(t, []types.NodeId{a.LocalID()}, chg.Members)
	require.Equal(t, []types.NodeId{a.LocalID()}, chg.Joined)

	b := hub.Join(2)
	chgA := <-a.ConfChg()
	chgB := <-b.ConfChg()
	require.ElementsMatch(t, []types.NodeId{a.LocalID(), b.LocalID()}, chgA.Members)
	require.Equal(t, []types.NodeId{b.LocalID()}, chgA.Joined)
	require.ElementsMatch(t, []types.NodeId{a.LocalID(), b.LocalID()}, chgB.Members)
}

func TestLocal_MulticastDeliversToAllIncludingSender(t *testing.T) {
	hub := NewCluster()
	a := hub.Join(1)
	b := hub.Join(2)
	<-a.ConfChg()
	<-a.ConfChg()
	<-b.ConfChg()

	require.NoError(t, a.Multicast([]byte("hi")))
	require.Equal(t, []byte("hi"), <-a.Deliver())
	require.Equal(t, []byte("hi"), <-b.Deliver())
}

func TestLocal_LeaveBroadcastsConfChg(t *testing.T) {
	hub := NewCluster()
	a := hub.Join(1)
	b := hub.Join(2)
	<-a.ConfChg()
	<-a.ConfChg()
	<-b.ConfChg()

	hub.Leave(a.LocalID())
	chg := <-b.ConfChg()
	require.Equal(t, []types.NodeId{b.LocalID()}, chg.Members)
	require.Equal(t, []types.NodeId{a.LocalID()}, chg.Left)
}

func TestLocal_ReadyReflectsBufferedWork(t *testing.T) {
	hub := NewCluster()
	a := hub.Join(1)
	<-a.ConfChg()

	require.False(t, a.Ready())
	require.NoError(t, a.Multicast([]byte("x")))
	require.True(t, a.Ready(), "an unconsumed buffered delivery means more work is already pending")

	<-a.Deliver()
	require.False(t, a.Ready())
}
