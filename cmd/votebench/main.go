package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/blogpost/config"
	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/internal/repository"
	"github.com/d60-Lab/blogpost/internal/service"
	"github.com/d60-Lab/blogpost/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	N := envInt("N", 5000)
	CONC := envInt("CONC", 16)
	OPTIONS := envInt("OPTIONS", 4)

	repo := repository.NewPostRepository(db)
	svc := service.NewPostService(repo, nil, nil)

	atomicPost := seedPost(ctx, svc, OPTIONS)
	naivePost := seedPost(ctx, svc, OPTIONS)

	atomicRecs, atomicDur := run(N, CONC, OPTIONS, func(idx int) error {
		return svc.CastVote(ctx, atomicPost, idx)
	})
	naiveRecs, naiveDur := run(N, CONC, OPTIONS, func(idx int) error {
		return naiveVote(ctx, db, naivePost, idx)
	})

	fmt.Printf("N=%d, CONC=%d, OPTIONS=%d, driver=%s\n", N, CONC, OPTIONS, cfg.Database.Driver)
	report("Atomic increment", atomicRecs, atomicDur, N, tally(ctx, repo, atomicPost))
	report("Read-modify-write", naiveRecs, naiveDur, N, tally(ctx, repo, naivePost))
}

func seedPost(ctx context.Context, svc service.PostService, options int) string {
	opts := make([]service.PollOptionInput, options)
	for i := range opts {
		opts[i].Text = fmt.Sprintf("option %d", i)
	}
	res := must(svc.CreatePost(ctx, &model.Caller{ID: "votebench", Role: model.RoleAuthor}, service.CreatePostInput{
		Title:   "votebench " + uuid.NewString()[:8],
		Content: "benchmark poll",
		Poll:    &service.PollSubmission{Question: "Which?", Options: opts},
	}))
	return res.Post.ID
}

// naiveVote 先读后写，并发下会丢票，用于对比
func naiveVote(ctx context.Context, db *gorm.DB, postID string, idx int) error {
	var opt model.PollOption
	if err := db.WithContext(ctx).Where("post_id = ? AND position = ?", postID, idx).First(&opt).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&model.PollOption{}).Where("id = ?", opt.ID).UpdateColumn("votes", opt.Votes+1).Error
}

func run(n, conc, options int, vote func(idx int) error) ([]time.Duration, time.Duration) {
	if conc > n {
		conc = n
	}
	feed := make(chan int, n)
	for i := 0; i < n; i++ {
		feed <- i % options
	}
	close(feed)

	recCh := make(chan time.Duration, n)
	done := make(chan struct{}, conc)
	t0 := time.Now()
	for w := 0; w < conc; w++ {
		go func() {
			for idx := range feed {
				st := time.Now()
				if err := vote(idx); err != nil {
					panic(err)
				}
				recCh <- time.Since(st)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < conc; w++ {
		<-done
	}
	total := time.Since(t0)
	close(recCh)

	recs := make([]time.Duration, 0, n)
	for d := range recCh {
		recs = append(recs, d)
	}
	return recs, total
}

func tally(ctx context.Context, repo repository.PostRepository, postID string) int64 {
	post := must(repo.Get(ctx, postID))
	if post.Poll == nil {
		return 0
	}
	return post.Poll.TotalVotes()
}

func report(name string, recs []time.Duration, total time.Duration, n int, counted int64) {
	fmt.Printf("%-18s total=%v per_op=%v p50=%v p95=%v p99=%v counted=%d lost=%d\n",
		name, total, total/time.Duration(n), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99),
		counted, int64(n)-counted)
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
