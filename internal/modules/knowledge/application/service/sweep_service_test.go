package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingDeleteStore 让删除总是失败，用来驱动清扫重试路径
type failingDeleteStore struct {
	repository.NamespaceStore
	deleteErr error
}

func (s *failingDeleteStore) Delete(_ context.Context, _ string, _ []string) error {
	return s.deleteErr
}

func seedSweepEntries(t *testing.T, store repository.NamespaceStore, namespace string) {
	t.Helper()
	ctx := context.Background()
	for _, key := range []string{"Alpha (part 1/2)", "Alpha (part 2/2)"} {
		_, err := store.Add(ctx, entry.Entry{
			Namespace: namespace, Key: key, Title: "Alpha", Content: "chunk",
			Status:   entry.Ready{},
			Metadata: entry.Metadata{StorageID: "sA", DisplayName: "Alpha"},
		})
		require.NoError(t, err)
	}
	_, err := store.Add(ctx, entry.Entry{
		Namespace: namespace, Key: "Beta", Title: "Beta", Content: "chunk",
		Status:   entry.Ready{},
		Metadata: entry.Metadata{StorageID: "sB", DisplayName: "Beta"},
	})
	require.NoError(t, err)
}

func TestSweepGroupRemovesEntriesBlobAndTombstone(t *testing.T) {
	ctx := context.Background()
	namespace := "org-1_kb-1"
	store := newStubStore(nil)
	tombRepo := &fakeTombRepo{}
	blobStore := newFakeBlobStore()
	notifRepo := &fakeNotifRepo{}

	seedSweepEntries(t, store, namespace)
	require.NoError(t, blobStore.Save(ctx, &file.BlobObject{StorageId: "sA", OrgId: "org-1", Filename: "a.pdf"}))
	require.NoError(t, tombRepo.Upsert(ctx, &file.FileTombstone{
		OrgId: "org-1", Namespace: namespace, GroupKey: "storage:sA",
		DisplayName: "Alpha", StorageId: "sA",
	}))

	svc := NewSweepService(store, tombRepo, blobStore, notifRepo, NewChangeNotifier(nil), 0, 0)
	require.NoError(t, svc.SweepGroup(ctx, "org-1", namespace, "storage:sA"))

	// 只剩另一个文件的条目
	ids := listAll(t, store, namespace)
	require.Len(t, ids, 1)
	left, err := store.Get(ctx, namespace, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Beta", left.Key)

	assert.Contains(t, blobStore.deleted, "sA")
	require.Len(t, tombRepo.tombs, 1)
	assert.Equal(t, file.TombstoneStatusSwept, tombRepo.tombs[0].Status)

	deleted := notifRepo.byKind(file.NotificationKindFileDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "Alpha", deleted[0].FileName)
}

func TestSweepGroupPagedScanLeavesNoSurvivors(t *testing.T) {
	ctx := context.Background()
	namespace := "org-1_kb-1"
	store := newStubStore(nil)
	tombRepo := &fakeTombRepo{}
	blobStore := newFakeBlobStore()

	// 目标组条目排在前面且跨多页：边删边翻页会把后移的条目翻漏
	for i := 0; i < 4; i++ {
		_, err := store.Add(ctx, entry.Entry{
			Namespace: namespace, Key: entry.ChunkKey("Alpha", i, 4), Title: "Alpha",
			Content: "chunk", Status: entry.Ready{},
			Metadata: entry.Metadata{StorageID: "sA", DisplayName: "Alpha", ChunkIndex: i, TotalChunks: 4},
		})
		require.NoError(t, err)
	}
	for _, name := range []string{"Beta", "Gamma"} {
		_, err := store.Add(ctx, entry.Entry{
			Namespace: namespace, Key: name, Title: name, Content: "chunk",
			Status:   entry.Ready{},
			Metadata: entry.Metadata{StorageID: "s" + name, DisplayName: name},
		})
		require.NoError(t, err)
	}
	require.NoError(t, blobStore.Save(ctx, &file.BlobObject{StorageId: "sA", OrgId: "org-1"}))
	require.NoError(t, tombRepo.Upsert(ctx, &file.FileTombstone{
		OrgId: "org-1", Namespace: namespace, GroupKey: "storage:sA", StorageId: "sA",
	}))

	svc := NewSweepService(store, tombRepo, blobStore, &fakeNotifRepo{}, NewChangeNotifier(nil), 2, 0)
	require.NoError(t, svc.SweepGroup(ctx, "org-1", namespace, "storage:sA"))

	ids := listAll(t, store, namespace)
	require.Len(t, ids, 2)
	for _, id := range ids {
		e, err := store.Get(ctx, namespace, id)
		require.NoError(t, err)
		assert.NotEqual(t, "sA", e.Metadata.StorageID)
	}
	assert.Contains(t, blobStore.deleted, "sA")
	assert.Equal(t, file.TombstoneStatusSwept, tombRepo.tombs[0].Status)
}

func TestSweepGroupFailureSchedulesNextPass(t *testing.T) {
	ctx := context.Background()
	namespace := "org-1_kb-1"
	inner := newStubStore(nil)
	store := &failingDeleteStore{NamespaceStore: inner, deleteErr: errors.New("index unavailable")}
	tombRepo := &fakeTombRepo{}
	blobStore := newFakeBlobStore()
	notifRepo := &fakeNotifRepo{}

	seedSweepEntries(t, inner, namespace)
	require.NoError(t, blobStore.Save(ctx, &file.BlobObject{StorageId: "sA", OrgId: "org-1"}))
	require.NoError(t, tombRepo.Upsert(ctx, &file.FileTombstone{
		OrgId: "org-1", Namespace: namespace, GroupKey: "storage:sA", StorageId: "sA",
	}))

	svc := NewSweepService(store, tombRepo, blobStore, notifRepo, NewChangeNotifier(nil), 0, 0)
	require.Error(t, svc.SweepGroup(ctx, "org-1", namespace, "storage:sA"))

	// 失败不动 blob 和墓碑，只安排下一轮
	assert.Empty(t, blobStore.deleted)
	require.Len(t, tombRepo.tombs, 1)
	assert.Equal(t, file.TombstoneStatusPending, tombRepo.tombs[0].Status)
	assert.Equal(t, 1, tombRepo.tombs[0].SweepPasses)
	assert.True(t, tombRepo.tombs[0].NextSweepAt.Valid)
	assert.Empty(t, notifRepo.byKind(file.NotificationKindFileDeleted))
}

func TestSweepGroupFailureWithoutTombstoneReturnsError(t *testing.T) {
	ctx := context.Background()
	namespace := "org-1_kb-1"
	inner := newStubStore(nil)
	store := &failingDeleteStore{NamespaceStore: inner, deleteErr: errors.New("index unavailable")}
	seedSweepEntries(t, inner, namespace)
	blobStore := newFakeBlobStore()

	svc := NewSweepService(store, &fakeTombRepo{}, blobStore, &fakeNotifRepo{}, NewChangeNotifier(nil), 0, 0)
	require.Error(t, svc.SweepGroup(ctx, "org-1", namespace, "storage:sA"))
	assert.Empty(t, blobStore.deleted)
}

func TestSweepGroupWithoutTombstoneStillDeletesEntries(t *testing.T) {
	ctx := context.Background()
	namespace := "org-1_kb-1"
	store := newStubStore(nil)
	seedSweepEntries(t, store, namespace)

	svc := NewSweepService(store, &fakeTombRepo{}, newFakeBlobStore(), &fakeNotifRepo{}, NewChangeNotifier(nil), 0, 0)
	require.NoError(t, svc.SweepGroup(ctx, "org-1", namespace, "storage:sA"))

	ids := listAll(t, store, namespace)
	assert.Len(t, ids, 1)
}

func TestProcessPurgesNamespaceWhenGroupKeyEmpty(t *testing.T) {
	ctx := context.Background()
	namespace := "org-1_kb-1"
	store := newStubStore(nil)
	tombRepo := &fakeTombRepo{}
	blobStore := newFakeBlobStore()
	seedSweepEntries(t, store, namespace)

	require.NoError(t, blobStore.Save(ctx, &file.BlobObject{StorageId: "sA", OrgId: "org-1"}))
	require.NoError(t, blobStore.Save(ctx, &file.BlobObject{StorageId: "sB", OrgId: "org-1"}))
	// 半路删除留下的墓碑也应随整库清理收口
	require.NoError(t, tombRepo.Upsert(ctx, &file.FileTombstone{
		OrgId: "org-1", Namespace: namespace, GroupKey: "storage:sA", StorageId: "sA",
	}))

	svc := NewSweepService(store, tombRepo, blobStore, &fakeNotifRepo{}, NewChangeNotifier(nil), 0, 0)

	payload, _ := json.Marshal(file.DeleteSweepPayload{Namespace: namespace})
	task := &file.IngestTask{Id: 1, OrgId: "org-1", PayloadJson: string(payload)}
	require.NoError(t, svc.Process(ctx, task))

	assert.Empty(t, listAll(t, store, namespace))
	assert.Contains(t, blobStore.deleted, "sA")
	assert.Contains(t, blobStore.deleted, "sB")
	assert.Equal(t, file.TombstoneStatusSwept, tombRepo.tombs[0].Status)
}

func TestSweepProcessRejectsBadPayload(t *testing.T) {
	svc := NewSweepService(newStubStore(nil), &fakeTombRepo{}, newFakeBlobStore(), &fakeNotifRepo{}, NewChangeNotifier(nil), 0, 0)

	err := svc.Process(context.Background(), &file.IngestTask{Id: 1, PayloadJson: "{broken"})
	assert.Error(t, err)

	payload, _ := json.Marshal(file.DeleteSweepPayload{})
	err = svc.Process(context.Background(), &file.IngestTask{Id: 2, PayloadJson: string(payload)})
	assert.Error(t, err)
}
