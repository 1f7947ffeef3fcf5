package directory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/groupoverlap/groupoverlap/internal/directory"
	"github.com/groupoverlap/groupoverlap/internal/mocks"
	"github.com/groupoverlap/groupoverlap/pkg/group"
)

func TestCachedDirectory(t *testing.T) {
	ctx := context.Background()

	t.Run("caches_found_groups", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockDirectory := mocks.NewMockDirectory(ctrl)
		rec := group.Record{ID: 100, Name: "Builders"}
		mockDirectory.EXPECT().FetchGroup(gomock.Any(), group.ID(100)).Return(rec, nil).Times(1)

		cached, err := directory.NewCachedDirectory(mockDirectory, 100, time.Minute)
		require.NoError(t, err)
		t.Cleanup(cached.Close)

		for i := 0; i < 3; i++ {
			got, err := cached.FetchGroup(ctx, 100)
			require.NoError(t, err)
			require.Equal(t, rec, got)
		}
	})

	t.Run("caches_not_found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockDirectory := mocks.NewMockDirectory(ctrl)
		notFound := fmt.Errorf("%w: status 400", directory.ErrNotFound)
		mockDirectory.EXPECT().FetchGroup(gomock.Any(), group.ID(5)).Return(group.Record{}, notFound).Times(1)

		cached, err := directory.NewCachedDirectory(mockDirectory, 100, time.Minute)
		require.NoError(t, err)
		t.Cleanup(cached.Close)

		for i := 0; i < 2; i++ {
			_, err := cached.FetchGroup(ctx, 5)
			require.ErrorIs(t, err, directory.ErrNotFound)
		}
	})

	t.Run("does_not_cache_transient_failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockDirectory := mocks.NewMockDirectory(ctrl)
		transient := fmt.Errorf("%w: %w", directory.ErrTransient, errors.New("connection reset"))
		gomock.InOrder(
			mockDirectory.EXPECT().FetchGroup(gomock.Any(), group.ID(7)).Return(group.Record{}, transient),
			mockDirectory.EXPECT().FetchGroup(gomock.Any(), group.ID(7)).Return(group.Record{ID: 7, Name: "x"}, nil),
		)

		cached, err := directory.NewCachedDirectory(mockDirectory, 100, time.Minute)
		require.NoError(t, err)
		t.Cleanup(cached.Close)

		_, err = cached.FetchGroup(ctx, 7)
		require.ErrorIs(t, err, directory.ErrTransient)

		got, err := cached.FetchGroup(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, group.ID(7), got.ID)
	})

	t.Run("passes_through_other_reads", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mockDirectory := mocks.NewMockDirectory(ctrl)
		mockDirectory.EXPECT().ListMembers(gomock.Any(), group.ID(1), "").Return(directory.MembersPage{Members: []group.MemberID{9}}, nil)
		mockDirectory.EXPECT().ListUserGroups(gomock.Any(), group.MemberID(9)).Return(nil, nil)

		cached, err := directory.NewCachedDirectory(mockDirectory, 100, time.Minute)
		require.NoError(t, err)
		t.Cleanup(cached.Close)

		page, err := cached.ListMembers(ctx, 1, "")
		require.NoError(t, err)
		require.Equal(t, []group.MemberID{9}, page.Members)

		_, err = cached.ListUserGroups(ctx, 9)
		require.NoError(t, err)
	})
}
