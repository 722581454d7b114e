package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/blogpost/config"
	"github.com/d60-Lab/blogpost/internal/cache"
	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/internal/repository"
	"github.com/d60-Lab/blogpost/internal/service"
	"github.com/d60-Lab/blogpost/pkg/database"
)

var words = []string{"go", "gin", "redis", "postgres", "cat", "poll", "schedule", "draft", "release", "notes"}

type feedRequest struct {
	query      string
	targets    service.SearchTargets
	categoryID string
}

type scenarioResult struct {
	durations   []time.Duration
	stats       cache.Stats
	cacheKeys   int
	memoryBytes int64
}

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	POSTS := envInt("POSTS", 2000)
	REQS := envInt("REQS", 3000)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = cfg.Redis.Addr
	}
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	repo := repository.NewPostRepository(db)
	fmt.Println("Setting up test data...")
	seed(ctx, service.NewPostService(repo, nil, nil), POSTS)
	fmt.Printf("Test data ready: %d posts\n", POSTS)

	reqs := makeRequests(REQS)
	cached := cache.NewPostCache(repo, client, cfg.Redis.TTL)

	noCache := runScenario(ctx, service.NewPostService(repo, nil, nil), nil, client, reqs, false)
	withCache := runScenario(ctx, service.NewPostService(cached, nil, nil), cached, client, reqs, true)

	fmt.Printf("\nFeed latency (%d req, %d posts, %s + Redis)\n", REQS, POSTS, cfg.Database.Driver)
	for _, row := range []struct {
		name string
		res  scenarioResult
	}{{"No cache", noCache}, {"Read-through cache", withCache}} {
		fmt.Printf("%-20s avg=%v p95=%v p99=%v hits=%d loads=%d cache_keys=%d mem=%s\n",
			row.name, avg(row.res.durations), pct(row.res.durations, 0.95), pct(row.res.durations, 0.99),
			row.res.stats.Hits, row.res.stats.Misses, row.res.cacheKeys, formatBytes(row.res.memoryBytes),
		)
	}
}

func seed(ctx context.Context, svc service.PostService, n int) {
	rnd := rand.New(rand.NewSource(7))
	future := time.Now().Add(24 * time.Hour)
	for i := 0; i < n; i++ {
		author := &model.Caller{ID: fmt.Sprintf("author-%d", i%20), Role: model.RoleAuthor}
		in := service.CreatePostInput{
			Title:      strings.Join(pick(rnd, 3), " "),
			Content:    strings.Join(pick(rnd, 40), " "),
			CategoryID: fmt.Sprintf("cat-%d", i%5),
			Hashtags:   pick(rnd, 2),
		}
		switch {
		case i%10 == 0:
			in.Published = new(bool)
		case i%10 == 1:
			in.ScheduledAt = &future
		}
		must(svc.CreatePost(ctx, author, in))
	}
}

func pick(rnd *rand.Rand, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = words[rnd.Intn(len(words))]
	}
	return out
}

func makeRequests(n int) []feedRequest {
	rnd := rand.New(rand.NewSource(42))
	out := make([]feedRequest, n)
	for i := range out {
		r := feedRequest{}
		if rnd.Float64() > 0.4 {
			r.query = words[rnd.Intn(len(words))]
			r.targets = service.SearchTargets{Title: rnd.Intn(2) == 0, Content: rnd.Intn(2) == 0}
		}
		if rnd.Float64() > 0.7 {
			r.categoryID = fmt.Sprintf("cat-%d", rnd.Intn(5))
		}
		out[i] = r
	}
	return out
}

func runScenario(ctx context.Context, svc service.PostService, pc *cache.PostCache, client *redis.Client, reqs []feedRequest, warm bool) scenarioResult {
	client.FlushAll(ctx)
	if pc != nil {
		pc.ResetStats()
	}

	call := func(r feedRequest) {
		if _, err := svc.ListVisiblePosts(ctx, time.Now(), service.FeedQuery{
			Query:      r.query,
			Targets:    r.targets,
			CategoryID: r.categoryID,
		}); err != nil {
			panic(err)
		}
	}

	if warm {
		fmt.Print("  Warming cache...")
		for _, r := range reqs {
			call(r)
		}
		fmt.Println(" done")
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		call(r)
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	res := scenarioResult{durations: out}
	if pc != nil {
		res.stats = pc.Stats()
	}
	keys, _ := client.Keys(ctx, "*").Result()
	res.cacheKeys = len(keys)
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		res.memoryBytes = parseRedisMemory(info)
	}
	return res
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
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

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
