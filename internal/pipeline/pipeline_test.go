// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/entitlement"
	"github.com/casthouse/casthouse/internal/identity"
	"github.com/casthouse/casthouse/internal/media"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

var (
	owner         = identity.Caller{ID: "owner-1", Role: identity.RoleUser}
	intruder      = identity.Caller{ID: "intruder", Role: identity.RoleUser}
	platformAdmin = identity.Caller{ID: "admin-1", Role: identity.RoleAdmin}
)

func newTestPipeline(t *testing.T) (*Service, *store.Store, *media.Simulator) {
	t.Helper()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sim := media.NewSimulator()
	svc := NewService(st, sim, config.PipelineConfig{
		Workers:      1,
		QueueSize:    16,
		ClaimTTL:     time.Minute,
		StageTimeout: 5 * time.Second,
	})
	return svc, st, sim
}

// seedEndedStream stores an ended, recorded stream ready for conversion.
func seedEndedStream(t *testing.T, st *store.Store, ownerID string) *models.StreamSession {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	session := &models.StreamSession{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Title:            "recorded broadcast",
		Status:           models.StreamStatusIdle,
		RequiredTier:     entitlement.TierPremium,
		RecordingEnabled: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := st.CreateStream(ctx, session); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if _, err := st.SetStreamLive(ctx, session.ID, now); err != nil {
		t.Fatalf("SetStreamLive: %v", err)
	}
	ended, err := st.SetStreamEnded(ctx, session.ID, "recordings/"+session.ID+".mp4", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SetStreamEnded: %v", err)
	}
	return ended
}

func allStagesRequest() *models.CreateVODRequest {
	return &models.CreateVODRequest{
		EnableAIProcessing:    true,
		GenerateThumbnails:    true,
		GenerateTranscription: true,
		GenerateHighlights:    true,
	}
}

// drain runs queued jobs synchronously until the queue is empty.
func (s *Service) drain(ctx context.Context) {
	for {
		select {
		case jobID := <-s.queue:
			s.runJob(ctx, jobID)
		default:
			return
		}
	}
}

func TestCreateVODPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown stream", func(t *testing.T) {
		svc, _, _ := newTestPipeline(t)
		_, _, err := svc.CreateVODFromStream(ctx, "missing", owner, allStagesRequest())
		if apperr.CodeOf(err) != apperr.CodeStreamNotFound {
			t.Fatalf("code = %s, want STREAM_NOT_FOUND", apperr.CodeOf(err))
		}
	})

	t.Run("non-owner", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		stream := seedEndedStream(t, st, "owner-1")
		_, _, err := svc.CreateVODFromStream(ctx, stream.ID, intruder, allStagesRequest())
		if apperr.CodeOf(err) != apperr.CodeUnauthorized {
			t.Fatalf("code = %s, want UNAUTHORIZED", apperr.CodeOf(err))
		}
	})

	t.Run("stream not ended", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		session := &models.StreamSession{
			ID:               uuid.NewString(),
			OwnerID:          "owner-1",
			Status:           models.StreamStatusIdle,
			RecordingEnabled: true,
			CreatedAt:        time.Now().UTC(),
		}
		if err := st.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		_, _, err := svc.CreateVODFromStream(ctx, session.ID, owner, allStagesRequest())
		if apperr.CodeOf(err) != apperr.CodeStreamNotEnded {
			t.Fatalf("code = %s, want STREAM_NOT_ENDED", apperr.CodeOf(err))
		}
	})

	t.Run("recording disabled", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		session := &models.StreamSession{
			ID:      uuid.NewString(),
			OwnerID: "owner-1",
			Status:  models.StreamStatusIdle,
		}
		if err := st.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		if _, err := st.SetStreamLive(ctx, session.ID, time.Now()); err != nil {
			t.Fatalf("SetStreamLive: %v", err)
		}
		if _, err := st.SetStreamEnded(ctx, session.ID, "", time.Now()); err != nil {
			t.Fatalf("SetStreamEnded: %v", err)
		}
		_, _, err := svc.CreateVODFromStream(ctx, session.ID, owner, allStagesRequest())
		if apperr.CodeOf(err) != apperr.CodeRecordingNotEnabled {
			t.Fatalf("code = %s, want RECORDING_NOT_ENABLED", apperr.CodeOf(err))
		}
	})
}

func TestCreateVODIdempotency(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestPipeline(t)
	stream := seedEndedStream(t, st, "owner-1")

	first, firstJob, err := svc.CreateVODFromStream(ctx, stream.ID, owner, allStagesRequest())
	if err != nil {
		t.Fatalf("CreateVODFromStream: %v", err)
	}

	second, secondJob, err := svc.CreateVODFromStream(ctx, stream.ID, owner, allStagesRequest())
	if err != nil {
		t.Fatalf("repeat CreateVODFromStream: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created vod %s, want existing %s", second.ID, first.ID)
	}
	if secondJob == nil || secondJob.ID != firstJob.ID {
		t.Errorf("second call returned a different job")
	}
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("all stages succeed", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		stream := seedEndedStream(t, st, "owner-1")

		vod, job, err := svc.CreateVODFromStream(ctx, stream.ID, owner, allStagesRequest())
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)

		got, err := st.GetVOD(ctx, vod.ID)
		if err != nil {
			t.Fatalf("GetVOD: %v", err)
		}
		if got.Status != models.VODStatusReady {
			t.Errorf("status = %q, want ready", got.Status)
		}
		if got.PartialFailure {
			t.Error("partial failure flagged on clean run")
		}
		if got.RequiredTier != entitlement.TierPremium {
			t.Errorf("tier = %v, want inherited premium", got.RequiredTier)
		}
		if got.AI.TranscriptRef == "" || len(got.AI.Thumbnails) == 0 || len(got.AI.Highlights) == 0 {
			t.Errorf("ai results incomplete: %+v", got.AI)
		}
		if got.DurationSec <= 0 {
			t.Error("duration not set by finalize")
		}
		for _, stage := range []string{models.StageFinalize, models.StageThumbnails, models.StageTranscription, models.StageHighlights} {
			if got.Stages[stage].Status != models.StageSucceeded {
				t.Errorf("stage %s = %q, want succeeded", stage, got.Stages[stage].Status)
			}
		}

		doneJob, err := st.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if doneJob.Status != models.JobCompleted {
			t.Errorf("job status = %q, want completed", doneJob.Status)
		}
	})

	t.Run("auto publish", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		stream := seedEndedStream(t, st, "owner-1")

		req := allStagesRequest()
		req.AutoPublish = true
		vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, owner, req)
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)

		got, _ := st.GetVOD(ctx, vod.ID)
		if got.Status != models.VODStatusPublished {
			t.Errorf("status = %q, want published", got.Status)
		}
		if got.PublishedAt == nil {
			t.Error("PublishedAt not set")
		}
	})

	t.Run("thumbnail failure is partial", func(t *testing.T) {
		svc, st, sim := newTestPipeline(t)
		sim.FailThumbnails = errors.New("thumbnailer crashed")
		stream := seedEndedStream(t, st, "owner-1")

		vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, owner, allStagesRequest())
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)

		got, _ := st.GetVOD(ctx, vod.ID)
		if got.Status != models.VODStatusReady {
			t.Errorf("status = %q, want ready", got.Status)
		}
		if !got.PartialFailure {
			t.Error("partial failure not flagged")
		}
		if got.Stages[models.StageThumbnails].Status != models.StageFailed {
			t.Errorf("thumbnails stage = %q, want failed", got.Stages[models.StageThumbnails].Status)
		}
		// Transcription is independent of thumbnails.
		if got.AI.TranscriptRef == "" {
			t.Error("transcription output lost to thumbnail failure")
		}
	})

	t.Run("highlights degrade when transcription fails", func(t *testing.T) {
		svc, st, sim := newTestPipeline(t)
		sim.FailTranscription = errors.New("asr down")
		stream := seedEndedStream(t, st, "owner-1")

		vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, owner, allStagesRequest())
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)

		got, _ := st.GetVOD(ctx, vod.ID)
		if got.Stages[models.StageTranscription].Status != models.StageFailed {
			t.Errorf("transcription stage = %q, want failed", got.Stages[models.StageTranscription].Status)
		}
		highlights := got.Stages[models.StageHighlights]
		if highlights.Status != models.StageSucceeded {
			t.Errorf("highlights stage = %q, want succeeded in raw mode", highlights.Status)
		}
		if highlights.Detail == "" {
			t.Error("raw mode not recorded in stage detail")
		}
		if len(got.AI.Highlights) == 0 {
			t.Error("no raw-mode highlight markers")
		}
		if !got.PartialFailure {
			t.Error("partial failure not flagged")
		}
	})

	t.Run("finalize failure fails the vod", func(t *testing.T) {
		svc, st, sim := newTestPipeline(t)
		sim.FailFinalize = errors.New("muxer error")
		stream := seedEndedStream(t, st, "owner-1")

		vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, owner, allStagesRequest())
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)

		got, _ := st.GetVOD(ctx, vod.ID)
		if got.Status != models.VODStatusFailed {
			t.Errorf("status = %q, want failed", got.Status)
		}
		// AI stages were never attempted: skipped, not failed.
		if sim.Calls("thumbnails") != 0 || sim.Calls("transcription") != 0 {
			t.Error("ai stages ran despite finalize failure")
		}
		if got.Stages[models.StageThumbnails].Status != models.StageSkipped {
			t.Errorf("thumbnails stage = %q, want skipped", got.Stages[models.StageThumbnails].Status)
		}
	})

	t.Run("no ai requested", func(t *testing.T) {
		svc, st, sim := newTestPipeline(t)
		stream := seedEndedStream(t, st, "owner-1")

		vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, owner, &models.CreateVODRequest{})
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)

		got, _ := st.GetVOD(ctx, vod.ID)
		if got.Status != models.VODStatusReady {
			t.Errorf("status = %q, want ready", got.Status)
		}
		if sim.Calls("thumbnails")+sim.Calls("transcription")+sim.Calls("highlights") != 0 {
			t.Error("ai stages ran without being requested")
		}
		if got.Stages[models.StageThumbnails].Status != models.StageNotRequested {
			t.Errorf("thumbnails stage = %q, want not_requested", got.Stages[models.StageThumbnails].Status)
		}
	})

	t.Run("stage flags stand alone", func(t *testing.T) {
		// Each generate flag is authoritative on its own; requesting
		// thumbnails without the ai preference flag still produces them.
		svc, st, sim := newTestPipeline(t)
		stream := seedEndedStream(t, st, "owner-1")

		vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, owner, &models.CreateVODRequest{
			GenerateThumbnails: true,
		})
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)

		if sim.Calls("thumbnails") == 0 {
			t.Error("thumbnails did not run")
		}
		got, _ := st.GetVOD(ctx, vod.ID)
		if got.Status != models.VODStatusReady {
			t.Errorf("status = %q, want ready", got.Status)
		}
		if got.Stages[models.StageThumbnails].Status != models.StageSucceeded {
			t.Errorf("thumbnails stage = %q, want succeeded", got.Stages[models.StageThumbnails].Status)
		}
		if len(got.AI.Thumbnails) == 0 {
			t.Error("no thumbnail refs on vod")
		}
		if got.Stages[models.StageTranscription].Status != models.StageNotRequested {
			t.Errorf("transcription stage = %q, want not_requested", got.Stages[models.StageTranscription].Status)
		}
	})
}

func TestPublishVOD(t *testing.T) {
	ctx := context.Background()

	readyVOD := func(t *testing.T, svc *Service, st *store.Store) *models.VOD {
		t.Helper()
		stream := seedEndedStream(t, st, "owner-1")
		vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, owner, &models.CreateVODRequest{})
		if err != nil {
			t.Fatalf("CreateVODFromStream: %v", err)
		}
		svc.drain(ctx)
		return vod
	}

	t.Run("publishes ready vod", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		vod := readyVOD(t, svc, st)

		published, err := svc.PublishVOD(ctx, vod.ID, owner)
		if err != nil {
			t.Fatalf("PublishVOD: %v", err)
		}
		if published.Status != models.VODStatusPublished {
			t.Errorf("status = %q, want published", published.Status)
		}
		if published.PublishedAt == nil {
			t.Error("PublishedAt not set")
		}
	})

	t.Run("double publish rejected", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		vod := readyVOD(t, svc, st)
		if _, err := svc.PublishVOD(ctx, vod.ID, owner); err != nil {
			t.Fatalf("PublishVOD: %v", err)
		}
		_, err := svc.PublishVOD(ctx, vod.ID, owner)
		if apperr.CodeOf(err) != apperr.CodeVODNotReady {
			t.Fatalf("code = %s, want VOD_NOT_READY", apperr.CodeOf(err))
		}
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		vod := readyVOD(t, svc, st)
		_, err := svc.PublishVOD(ctx, vod.ID, intruder)
		if apperr.CodeOf(err) != apperr.CodeUnauthorized {
			t.Fatalf("code = %s, want UNAUTHORIZED", apperr.CodeOf(err))
		}
	})

	t.Run("admin may publish", func(t *testing.T) {
		svc, st, _ := newTestPipeline(t)
		vod := readyVOD(t, svc, st)
		published, err := svc.PublishVOD(ctx, vod.ID, platformAdmin)
		if err != nil {
			t.Fatalf("PublishVOD as admin: %v", err)
		}
		if published.Status != models.VODStatusPublished {
			t.Errorf("status = %q, want published", published.Status)
		}
	})
}

func TestAdminConversion(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestPipeline(t)
	stream := seedEndedStream(t, st, "owner-1")

	vod, _, err := svc.CreateVODFromStream(ctx, stream.ID, platformAdmin, allStagesRequest())
	if err != nil {
		t.Fatalf("CreateVODFromStream as admin: %v", err)
	}
	if vod.OwnerID != "owner-1" {
		t.Errorf("vod owner = %q, want stream owner", vod.OwnerID)
	}
}

func TestDirectUpload(t *testing.T) {
	ctx := context.Background()
	svc, st, sim := newTestPipeline(t)

	vod, job, err := svc.CreateDirectUpload(ctx, "owner-1", &models.DirectUploadRequest{
		Title:        "uploaded asset",
		StorageRef:   "uploads/raw-asset.mp4",
		RequiredTier: "pro",
		CreateVODRequest: models.CreateVODRequest{
			EnableAIProcessing: true,
			GenerateThumbnails: true,
		},
	})
	if err != nil {
		t.Fatalf("CreateDirectUpload: %v", err)
	}
	if job == nil {
		t.Fatal("no job returned")
	}
	svc.drain(ctx)

	got, err := st.GetVOD(ctx, vod.ID)
	if err != nil {
		t.Fatalf("GetVOD: %v", err)
	}
	if got.RequiredTier != entitlement.TierPro {
		t.Errorf("tier = %v, want pro", got.RequiredTier)
	}
	if got.Stages[models.StageFinalize].Status != models.StageSkipped {
		t.Errorf("finalize stage = %q, want skipped for direct upload", got.Stages[models.StageFinalize].Status)
	}
	if sim.Calls("finalize") != 0 {
		t.Error("finalize ran for a direct upload")
	}
	if got.StorageRef != "uploads/raw-asset.mp4" {
		t.Errorf("storage ref = %q, want original upload ref", got.StorageRef)
	}
	if len(got.AI.Thumbnails) == 0 {
		t.Error("thumbnails not generated")
	}
}

func TestClaimGuard(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestPipeline(t)
	stream := seedEndedStream(t, st, "owner-1")

	vod, job, err := svc.CreateVODFromStream(ctx, stream.ID, owner, &models.CreateVODRequest{})
	if err != nil {
		t.Fatalf("CreateVODFromStream: %v", err)
	}

	// Another run already holds the claim.
	if err := st.ClaimVOD(ctx, vod.ID, "other-run", time.Minute); err != nil {
		t.Fatalf("ClaimVOD: %v", err)
	}
	svc.drain(ctx)

	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != models.JobFailed {
		t.Errorf("job status = %q, want failed when claim held", got.Status)
	}
}

func TestQueuedJobRecovery(t *testing.T) {
	ctx := context.Background()
	svc, st, sim := newTestPipeline(t)
	stream := seedEndedStream(t, st, "owner-1")

	vod, job, err := svc.CreateVODFromStream(ctx, stream.ID, owner, allStagesRequest())
	if err != nil {
		t.Fatalf("CreateVODFromStream: %v", err)
	}

	// A restarted instance shares the store but starts with an empty
	// delivery channel; the sweep must find the still-queued job.
	restarted := NewService(st, media.NewSimulator(), config.PipelineConfig{
		Workers:      1,
		QueueSize:    16,
		ClaimTTL:     time.Minute,
		StageTimeout: 5 * time.Second,
	})
	if n := restarted.requeueStale(ctx, 0); n != 1 {
		t.Fatalf("requeueStale = %d, want 1", n)
	}
	restarted.drain(ctx)

	got, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != models.JobCompleted {
		t.Errorf("job status = %q, want completed after recovery", got.Status)
	}
	gotVOD, _ := st.GetVOD(ctx, vod.ID)
	if gotVOD.Status != models.VODStatusReady {
		t.Errorf("vod status = %q, want ready", gotVOD.Status)
	}

	// The original instance still holds a channel entry for the same job;
	// delivering it again must not re-run the conversion.
	svc.drain(ctx)
	if sim.Calls("finalize") != 0 {
		t.Error("duplicate delivery re-ran the pipeline")
	}
	again, _ := st.GetJob(ctx, job.ID)
	if again.Status != models.JobCompleted {
		t.Errorf("job status = %q after duplicate delivery, want completed", again.Status)
	}
}

func TestEnqueueDefersOnFullQueue(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, media.NewSimulator(), config.PipelineConfig{
		Workers:      1,
		QueueSize:    1,
		ClaimTTL:     time.Minute,
		StageTimeout: 5 * time.Second,
	})

	upload := func(title string) *models.PipelineJob {
		_, job, err := svc.CreateDirectUpload(ctx, "owner-1", &models.DirectUploadRequest{
			Title:      title,
			StorageRef: "uploads/" + title + ".mp4",
		})
		if err != nil {
			t.Fatalf("CreateDirectUpload(%s): %v", title, err)
		}
		if job == nil {
			t.Fatalf("CreateDirectUpload(%s): no job returned", title)
		}
		return job
	}

	upload("first")
	deferred := upload("second") // channel full, job persists queued

	svc.drain(ctx)
	got, err := st.GetJob(ctx, deferred.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != models.JobQueued {
		t.Fatalf("deferred job status = %q, want still queued", got.Status)
	}

	if n := svc.requeueStale(ctx, 0); n != 1 {
		t.Fatalf("requeueStale = %d, want 1", n)
	}
	svc.drain(ctx)

	got, _ = st.GetJob(ctx, deferred.ID)
	if got.Status != models.JobCompleted {
		t.Errorf("deferred job status = %q, want completed after sweep", got.Status)
	}
}
