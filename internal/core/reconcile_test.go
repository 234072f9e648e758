package core_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/portal/internal/core"
	"github.com/JonMunkholm/portal/internal/store/storetest"
)

const header = "student_id,student_name,subject,marks\n"

// threeRows is a batch with two valid rows for one student and one bad id.
const threeRows = header +
	"10,Ann,Math,70\n" +
	"10,Ann,Science,60\n" +
	"abc,Bad,Math,50\n"

func newService(t *testing.T, cfg core.ServiceConfig) (*core.Service, core.Store) {
	t.Helper()
	st := storetest.NewSQLite(t)
	if cfg.Credentials == (core.CredentialPolicy{}) {
		cfg.Credentials = core.DefaultCredentialPolicy()
	}
	return core.NewService(st, storetest.PlainHasher{}, cfg, nil), st
}

func importCSV(t *testing.T, svc *core.Service, csv string) *core.Summary {
	t.Helper()
	summary, err := svc.ImportBatch(context.Background(), "batch.csv", strings.NewReader(csv), int64(len(csv)), core.ImportOptions{})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	return summary
}

func seedIdentity(t *testing.T, st core.Store, identity core.Identity) {
	t.Helper()
	if identity.Email == "" {
		identity.Email = identity.Username + "@example.com"
	}
	if _, err := st.CreateIdentity(context.Background(), identity); err != nil {
		t.Fatalf("seed identity %d: %v", identity.ID, err)
	}
}

func TestImportBatch_ThreeRowScenario(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	summary := importCSV(t, svc, threeRows)

	if summary.Processed != 2 || summary.Errors != 1 {
		t.Errorf("processed=%d errors=%d, want 2 and 1", summary.Processed, summary.Errors)
	}
	if len(summary.CreatedStudents) != 1 || summary.CreatedStudents[0].ID != 10 {
		t.Errorf("CreatedStudents = %+v, want one student at id 10", summary.CreatedStudents)
	}
	wantScores := []string{"Ann - Math", "Ann - Science"}
	if strings.Join(summary.CreatedScores, "|") != strings.Join(wantScores, "|") {
		t.Errorf("CreatedScores = %v, want %v", summary.CreatedScores, wantScores)
	}
	if len(summary.RowErrors) != 1 || summary.RowErrors[0].Line != 4 {
		t.Errorf("RowErrors = %+v, want one error on line 4", summary.RowErrors)
	}

	student, err := st.GetIdentity(ctx, 10)
	if err != nil {
		t.Fatalf("GetIdentity(10): %v", err)
	}
	if student.Username != "student10" || student.Email != "student10@school.edu" || !student.IsStudent() {
		t.Errorf("derived identity = %+v", student)
	}
	if student.PasswordHash != "plain:student10" {
		t.Errorf("PasswordHash = %q, want hash of derived password", student.PasswordHash)
	}
	if student.DisplayName != "Ann" {
		t.Errorf("DisplayName = %q, want Ann", student.DisplayName)
	}

	want := "Successfully processed 2 records! Created 1 new student accounts. 1 errors occurred."
	if got := summary.Message(); got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestImportBatch_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	importCSV(t, svc, threeRows)
	second := importCSV(t, svc, threeRows)

	if second.Processed != 2 || second.Errors != 1 {
		t.Errorf("processed=%d errors=%d, want 2 and 1", second.Processed, second.Errors)
	}
	if len(second.CreatedStudents) != 0 {
		t.Errorf("CreatedStudents on replay = %+v, want none", second.CreatedStudents)
	}
	if len(second.CreatedScores) != 0 {
		t.Errorf("CreatedScores on replay = %v, want none", second.CreatedScores)
	}
	if second.UpdatedScores != 2 {
		t.Errorf("UpdatedScores = %d, want 2", second.UpdatedScores)
	}

	if n, _ := st.CountIdentities(ctx); n != 1 {
		t.Errorf("identities = %d, want 1", n)
	}
	scores, err := st.ListScoresByStudent(ctx, 10)
	if err != nil {
		t.Fatalf("ListScoresByStudent: %v", err)
	}
	got := map[string]int{}
	for _, s := range scores {
		got[s.Subject] = s.Mark
	}
	if len(got) != 2 || got["Math"] != 70 || got["Science"] != 60 {
		t.Errorf("scores after replay = %v", got)
	}
}

func TestImportBatch_OverwritesMark(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	importCSV(t, svc, header+"7,Cat,History,40\n")
	summary := importCSV(t, svc, header+"7,Cat,History,88\n")

	if summary.UpdatedScores != 1 || len(summary.CreatedScores) != 0 {
		t.Errorf("updated=%d created=%v, want one update", summary.UpdatedScores, summary.CreatedScores)
	}
	score, err := st.GetScore(ctx, 7, "History")
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	if score.Mark != 88 {
		t.Errorf("Mark = %d, want 88", score.Mark)
	}
}

func TestImportBatch_DuplicatePairInOneBatch(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	summary := importCSV(t, svc, header+"3,Dan,Math,10\n3,Dan,Math,20\n")

	if summary.Processed != 2 {
		t.Errorf("Processed = %d, want 2", summary.Processed)
	}
	if n, _ := st.CountScores(ctx); n != 1 {
		t.Errorf("scores = %d, want 1", n)
	}
	score, _ := st.GetScore(ctx, 3, "Math")
	if score.Mark != 20 {
		t.Errorf("Mark = %d, want the later row's 20", score.Mark)
	}
}

func TestImportBatch_CollisionRemap(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	seedIdentity(t, st, core.Identity{ID: 5, Username: "admin", Role: core.RoleAdmin})
	seedIdentity(t, st, core.Identity{ID: 7, Username: "student7", Role: core.RoleStudent})

	summary := importCSV(t, svc, header+"5,Eve,Math,90\n5,Eve,Art,80\n")

	if summary.Processed != 2 || summary.Errors != 0 {
		t.Fatalf("processed=%d errors=%d", summary.Processed, summary.Errors)
	}
	if len(summary.Remaps) != 1 || summary.Remaps[0] != (core.Remap{Claimed: 5, Assigned: 8}) {
		t.Errorf("Remaps = %+v, want 5 -> 8", summary.Remaps)
	}
	if len(summary.CreatedStudents) != 1 || summary.CreatedStudents[0].ID != 8 {
		t.Errorf("CreatedStudents = %+v, want one student at 8", summary.CreatedStudents)
	}

	admin, err := st.GetIdentity(ctx, 5)
	if err != nil || !admin.IsAdmin() {
		t.Errorf("admin at 5 changed: %+v, %v", admin, err)
	}
	moved, err := st.GetIdentity(ctx, 8)
	if err != nil {
		t.Fatalf("GetIdentity(8): %v", err)
	}
	if !moved.IsStudent() || moved.Username != "student8" {
		t.Errorf("remapped student = %+v", moved)
	}
	if moved.ClaimedID == nil || *moved.ClaimedID != 5 {
		t.Errorf("ClaimedID = %v, want 5", moved.ClaimedID)
	}
	if n, _ := st.ListScoresByStudent(ctx, 8); len(n) != 2 {
		t.Errorf("remapped student has %d scores, want 2", len(n))
	}
	if !strings.Contains(summary.Message(), "5 -> 8") {
		t.Errorf("Message() = %q, want the remap", summary.Message())
	}
}

func TestImportBatch_CollisionReplayReusesRemappedStudent(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})
	seedIdentity(t, st, core.Identity{ID: 5, Username: "admin", Role: core.RoleAdmin})

	batch := header + "5,Eve,Math,90\n"
	first := importCSV(t, svc, batch)
	second := importCSV(t, svc, batch)

	if len(first.CreatedStudents) != 1 {
		t.Fatalf("first run created %d students, want 1", len(first.CreatedStudents))
	}
	if len(second.CreatedStudents) != 0 {
		t.Errorf("replay created %+v, want none", second.CreatedStudents)
	}
	if len(second.Remaps) != 1 || second.Remaps[0].Assigned != first.Remaps[0].Assigned {
		t.Errorf("replay remaps = %+v, want %+v", second.Remaps, first.Remaps)
	}
	if n, _ := st.CountIdentities(ctx); n != 2 {
		t.Errorf("identities = %d, want 2", n)
	}
	if n, _ := st.CountScores(ctx); n != 1 {
		t.Errorf("scores = %d, want 1", n)
	}
}

func TestImportBatch_ClaimedIDAboveBoundIsRowError(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})
	seedIdentity(t, st, core.Identity{ID: 5, Username: "admin", Role: core.RoleAdmin})

	summary := importCSV(t, svc, header+
		"9223372036854775807,Max,Math,50\n"+
		"2147483648,Big,Math,50\n"+
		"5,Ann,Math,70\n")

	if summary.Processed != 1 || summary.Errors != 2 {
		t.Fatalf("processed=%d errors=%d, want 1 and 2", summary.Processed, summary.Errors)
	}
	if len(summary.Remaps) != 1 || summary.Remaps[0] != (core.Remap{Claimed: 5, Assigned: 6}) {
		t.Errorf("Remaps = %+v, want 5 -> 6", summary.Remaps)
	}

	admin, err := svc.ProvisionAdmin(ctx, "admin2", "admin2@school.edu", "pw")
	if err != nil {
		t.Fatalf("ProvisionAdmin after batch: %v", err)
	}
	if admin.ID != 7 {
		t.Errorf("admin.ID = %d, want 7", admin.ID)
	}
}

func TestImportBatch_ClaimedIDAtBound(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	summary := importCSV(t, svc, header+"2147483647,Max,Math,50\n")
	if summary.Processed != 1 || summary.Errors != 0 {
		t.Fatalf("processed=%d errors=%d, want 1 and 0", summary.Processed, summary.Errors)
	}
	if _, err := st.GetIdentity(ctx, core.MaxClaimedID); err != nil {
		t.Errorf("GetIdentity(MaxClaimedID): %v", err)
	}
}

func TestNextIDDoesNotWrap(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})
	seedIdentity(t, st, core.Identity{ID: 5, Username: "admin", Role: core.RoleAdmin})
	seedIdentity(t, st, core.Identity{ID: math.MaxInt64, Username: "last", Role: core.RoleStudent})

	_, err := svc.ImportBatch(ctx, "batch.csv", strings.NewReader(header+"5,Ann,Math,70\n"), -1, core.ImportOptions{})
	if !errors.Is(err, core.ErrIDSpaceExhausted) {
		t.Errorf("ImportBatch error = %v, want ErrIDSpaceExhausted", err)
	}
	if _, err := svc.ProvisionAdmin(ctx, "admin2", "admin2@school.edu", "pw"); !errors.Is(err, core.ErrIDSpaceExhausted) {
		t.Errorf("ProvisionAdmin error = %v, want ErrIDSpaceExhausted", err)
	}
	if n, _ := st.CountIdentities(ctx); n != 2 {
		t.Errorf("identities = %d, want 2", n)
	}
}

func TestImportBatch_MarkRange(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	summary := importCSV(t, svc, header+"1,Ann,Math,101\n2,Bob,Math,-1\n")

	if summary.Processed != 0 || summary.Errors != 2 {
		t.Errorf("processed=%d errors=%d, want 0 and 2", summary.Processed, summary.Errors)
	}
	if n, _ := st.CountScores(ctx); n != 0 {
		t.Errorf("scores = %d, want 0", n)
	}
	if n, _ := st.CountIdentities(ctx); n != 0 {
		t.Errorf("identities = %d, want 0 (invalid rows create nothing)", n)
	}
}

func TestImportBatch_ProcessedPlusErrorsEqualsRows(t *testing.T) {
	svc, _ := newService(t, core.ServiceConfig{})

	rows := []string{
		"1,Ann,Math,70",
		"1,Ann,Math,71",
		"x,Bad,Math,1",
		"2,,Math,5",
		"3,Cy,,5",
		"4,Di,Art,100",
		"5,Ed,Art,0",
		"6,Fay,Art,1000",
		"7,Gus",
		"",
		" , , , ",
	}
	summary := importCSV(t, svc, header+strings.Join(rows, "\n")+"\n")

	const dataRows = 9 // blank rows are not data rows
	if summary.TotalRows() != dataRows {
		t.Errorf("processed+errors = %d, want %d", summary.TotalRows(), dataRows)
	}
	if summary.Processed != 4 || summary.Errors != 5 {
		t.Errorf("processed=%d errors=%d, want 4 and 5", summary.Processed, summary.Errors)
	}
}

func TestImportBatch_StructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		cfg     core.ServiceConfig
		wantErr error
	}{
		{name: "missing column", input: "student_id,student_name,subject\n1,Ann,Math\n", wantErr: core.ErrMalformedBatch},
		{name: "empty upload", input: "", wantErr: core.ErrEmptyFile},
		{name: "too large", input: threeRows, cfg: core.ServiceConfig{MaxFileSize: 10}, wantErr: core.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newService(t, tt.cfg)

			// Unknown size forces the limit to be enforced while reading.
			summary, err := svc.ImportBatch(context.Background(), "bad.csv", strings.NewReader(tt.input), -1, core.ImportOptions{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if summary != nil {
				t.Errorf("summary = %+v, want nil", summary)
			}
			if n, _ := st.CountIdentities(context.Background()); n != 0 {
				t.Errorf("identities = %d, want no mutation", n)
			}
		})
	}
}

func TestImportBatch_DeclaredSizeTooLarge(t *testing.T) {
	svc, _ := newService(t, core.ServiceConfig{MaxFileSize: 100})

	_, err := svc.ImportBatch(context.Background(), "big.csv", strings.NewReader(threeRows), 1<<20, core.ImportOptions{})
	if !errors.Is(err, core.ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
}

func TestImportBatch_DryRunRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	summary, err := svc.ImportBatch(ctx, "preview.csv", strings.NewReader(threeRows), -1, core.ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if !summary.DryRun || summary.Processed != 2 || len(summary.CreatedStudents) != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if !strings.HasPrefix(summary.Message(), "Dry run: 2 records") {
		t.Errorf("Message() = %q", summary.Message())
	}
	if n, _ := st.CountIdentities(ctx); n != 0 {
		t.Errorf("identities after dry run = %d, want 0", n)
	}
	if n, _ := st.CountScores(ctx); n != 0 {
		t.Errorf("scores after dry run = %d, want 0", n)
	}
}

func TestImportBatch_StorageFailureRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	st := storetest.NewSQLite(t)
	flaky := &flakyStore{Store: st, failOnScore: 2}
	svc := core.NewService(flaky, storetest.PlainHasher{}, core.ServiceConfig{Credentials: core.DefaultCredentialPolicy()}, nil)

	_, err := svc.ImportBatch(ctx, "batch.csv", strings.NewReader(threeRows), -1, core.ImportOptions{})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("error = %v, want the storage failure", err)
	}

	if n, _ := st.CountIdentities(ctx); n != 0 {
		t.Errorf("identities = %d, want 0 after rollback", n)
	}
	if n, _ := st.CountScores(ctx); n != 0 {
		t.Errorf("scores = %d, want 0 after rollback", n)
	}
}

func TestImportBatch_UsernameCollisionIsStorageFailure(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{})

	// An account already owns the username the batch would derive for id 12.
	seedIdentity(t, st, core.Identity{ID: 3, Username: "student12", Role: core.RoleStudent})

	_, err := svc.ImportBatch(ctx, "batch.csv", strings.NewReader(header+"4,Ok,Math,1\n12,Zed,Math,50\n"), -1, core.ImportOptions{})
	if !errors.Is(err, core.ErrUsernameTaken) {
		t.Fatalf("error = %v, want ErrUsernameTaken", err)
	}
	if _, err := st.GetIdentity(ctx, 4); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("row before the failure was kept: %v", err)
	}
}

func TestImportBatch_RandomPasswords(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t, core.ServiceConfig{Credentials: core.CredentialPolicy{EmailDomain: "uni.test"}})

	importCSV(t, svc, header+"9,Ivy,Math,50\n")

	student, err := st.GetIdentity(ctx, 9)
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if student.Email != "student9@uni.test" {
		t.Errorf("Email = %q", student.Email)
	}
	if student.PasswordHash == "plain:student9" {
		t.Error("password should not be derived from the id")
	}
}

func TestImportBatch_GateBusy(t *testing.T) {
	svc, _ := newService(t, core.ServiceConfig{MaxWait: 50 * time.Millisecond})

	if err := svc.Limiter().Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer svc.Limiter().Release()

	_, err := svc.ImportBatch(context.Background(), "batch.csv", strings.NewReader(threeRows), -1, core.ImportOptions{})
	if !errors.Is(err, core.ErrTooManyUploads) {
		t.Errorf("error = %v, want ErrTooManyUploads", err)
	}
}

func TestImportBatch_Observer(t *testing.T) {
	st := storetest.NewSQLite(t)
	obs := &recordingObserver{}
	svc := core.NewService(st, storetest.PlainHasher{}, core.ServiceConfig{}, obs)

	if _, err := svc.ImportBatch(context.Background(), "a.csv", strings.NewReader(threeRows), -1, core.ImportOptions{}); err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if _, err := svc.ImportBatch(context.Background(), "b.csv", strings.NewReader("nope\n"), -1, core.ImportOptions{}); err == nil {
		t.Fatal("expected structural error")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.calls) != 2 {
		t.Fatalf("observer calls = %d, want 2", len(obs.calls))
	}
	if obs.calls[0].err != nil || obs.calls[0].summary == nil || obs.calls[0].summary.BatchID == "" {
		t.Errorf("first call = %+v, want summary with batch id", obs.calls[0])
	}
	if !errors.Is(obs.calls[1].err, core.ErrMalformedBatch) {
		t.Errorf("second call err = %v, want ErrMalformedBatch", obs.calls[1].err)
	}
}

var errDiskFull = errors.New("disk full")

// flakyStore fails the nth CreateScore inside a transaction.
type flakyStore struct {
	core.Store
	failOnScore int
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(q core.Queries) error) error {
	return f.Store.WithTx(ctx, func(q core.Queries) error {
		return fn(&flakyQueries{Queries: q, remaining: f.failOnScore})
	})
}

type flakyQueries struct {
	core.Queries
	remaining int
}

func (f *flakyQueries) CreateScore(ctx context.Context, score core.ScoreRecord) (core.ScoreRecord, error) {
	f.remaining--
	if f.remaining <= 0 {
		return core.ScoreRecord{}, errDiskFull
	}
	return f.Queries.CreateScore(ctx, score)
}

type observation struct {
	summary *core.Summary
	err     error
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []observation
}

func (r *recordingObserver) ObserveBatch(summary *core.Summary, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, observation{summary: summary, err: err})
}
