package stats

import (
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/theirongolddev/oburn/internal/record"
	"github.com/theirongolddev/oburn/internal/storage"
)

// parentDepthLimit caps ancestor resolution so a cyclic parent chain
// cannot spin forever.
const parentDepthLimit = 20

// loadedMessage is one decoded message record plus everything derived
// from its part files, ready for the ordered fold.
type loadedMessage struct {
	msg            record.Message
	path           string
	identity       string
	tools          []string
	reasoningChars int
	inlineDiffs    []FileDiff
	created        int64
	hasCreated     bool
}

// Collect walks the whole record tree and produces a complete
// aggregate. Decode is parallel; the fold runs over records sorted by
// creation timestamp so ordering-sensitive merges are deterministic.
func Collect(b *storage.Backend) *Stats {
	s := NewStats()

	titles, rawParents := b.LoadSessions()
	s.SessionTitles = titles
	s.Parents = resolveParents(rawParents)
	for child, parent := range s.Parents {
		s.Children[parent] = append(s.Children[parent], child)
	}
	for _, children := range s.Children {
		sort.Strings(children)
	}

	sessionDiffs := loadSessionDiffMap(b)
	msgs := loadMessages(b)

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].created < msgs[j].created })

	fs := fold(s, msgs)
	applySessionDiffs(s, fs, b, sessionDiffs)
	finalize(s)
	return s
}

// resolveParents follows each child's parent chain to its root
// ancestor, so subagent activity lands on the top-level session.
func resolveParents(parents map[string]string) map[string]string {
	resolved := make(map[string]string, len(parents))
	for child := range parents {
		cur := child
		for depth := 0; depth < parentDepthLimit; depth++ {
			p, ok := parents[cur]
			if !ok {
				break
			}
			cur = p
		}
		resolved[child] = cur
	}
	return resolved
}

func loadSessionDiffMap(b *storage.Backend) map[string][]FileDiff {
	out := make(map[string][]FileDiff)
	for sessionID, entries := range b.LoadSessionDiffs() {
		diffs := make([]FileDiff, 0, len(entries))
		for _, e := range entries {
			fd := FileDiff{
				Path:      string(e.File),
				Additions: uint64(e.Additions),
				Deletions: uint64(e.Deletions),
				Status:    string(e.Status),
			}
			if fd.Path == "" {
				fd.Path = "unknown"
			}
			if fd.Status == "" {
				fd.Status = "modified"
			}
			diffs = append(diffs, fd)
		}
		SortFileDiffs(diffs)
		out[sessionID] = diffs
	}
	return out
}

// loadMessages reads and decodes every message record, and its part
// files, with a bounded worker pool. Unreadable records are skipped.
func loadMessages(b *storage.Backend) []loadedMessage {
	files := b.ListMessageFiles()
	if len(files) == 0 {
		return nil
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make([]*loadedMessage, len(files))
	var wg sync.WaitGroup

	for i := range files {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = loadOne(b, files[idx])
			}
		}()
	}
	wg.Wait()

	msgs := make([]loadedMessage, 0, len(files))
	for _, r := range results {
		if r != nil {
			msgs = append(msgs, *r)
		}
	}
	return msgs
}

func loadOne(b *storage.Backend, path string) *loadedMessage {
	msg, ok := b.LoadMessage(path)
	if !ok {
		return nil
	}
	lm := &loadedMessage{msg: msg, path: path, identity: string(msg.ID)}
	if lm.identity == "" {
		lm.identity = path
	}
	lm.created, lm.hasCreated = msg.CreatedMillis()

	if msg.ID != "" {
		for _, p := range b.LoadParts(string(msg.ID)) {
			switch p.Type {
			case "tool":
				if p.Tool != "" {
					lm.tools = append(lm.tools, p.Tool)
				}
			case "reasoning":
				lm.reasoningChars += len(p.Text)
			}
		}
	}

	if msg.Summary != nil {
		for _, d := range msg.Summary.Diffs {
			fd := FileDiff{
				Path:      string(d.File),
				Additions: uint64(d.Additions),
				Deletions: uint64(d.Deletions),
				Status:    string(d.Status),
			}
			if fd.Status == "" {
				fd.Status = "modified"
			}
			if fd.Path != "" {
				lm.inlineDiffs = append(lm.inlineDiffs, fd)
			}
		}
	}
	return lm
}

func sessDayKey(sessionID, day string) string {
	return sessionID + "|" + day
}

// foldState carries the scratch structures that live only for the
// duration of one full fold.
type foldState struct {
	firstDays     map[string]string
	overallStart  map[string]int64
	unionDiffs    map[string]map[string]FileDiff
	sessIntervals map[string][][2]int64
	agentInterval map[string][][2]int64
}

func fold(s *Stats, msgs []loadedMessage) *foldState {
	fs := &foldState{
		firstDays:     make(map[string]string),
		overallStart:  make(map[string]int64),
		unionDiffs:    make(map[string]map[string]FileDiff),
		sessIntervals: make(map[string][][2]int64),
		agentInterval: make(map[string][][2]int64),
	}
	modelIndex := make(map[string]int)
	for i, mu := range s.Models {
		modelIndex[mu.Name] = i
	}

	for i := range msgs {
		foldMessage(s, fs, modelIndex, &msgs[i])
	}

	applyIntervals(s, fs)
	return fs
}

func foldMessage(s *Stats, fs *foldState, modelIndex map[string]int, data *loadedMessage) {
	if s.Processed[data.identity] {
		return
	}
	s.Processed[data.identity] = true

	msg := &data.msg
	sessionID := string(msg.SessionID)
	effectiveID := sessionID
	if root, ok := s.Parents[sessionID]; ok {
		effectiveID = root
	}
	isSubagent := effectiveID != sessionID

	agentName := string(msg.Agent)
	if agentName == "" {
		agentName = "unknown"
	}

	if sessionID != "" {
		files := s.SessionFiles[sessionID]
		if files == nil {
			files = make(map[string]bool)
			s.SessionFiles[sessionID] = files
		}
		files[data.path] = true
	}

	day := record.Day(data.created, data.hasCreated)
	role := string(msg.Role)
	isUser := role == "user"
	isAssistant := role == "assistant"
	modelID := msg.ModelIdentity()
	cost := float64(msg.Cost)

	var tokens Tokens
	if t := msg.Tokens; t != nil {
		tokens = Tokens{
			Input:     uint64(t.Input),
			Output:    uint64(t.Output),
			Reasoning: uint64(t.Reasoning),
		}
		if t.Cache != nil {
			tokens.CacheRead = uint64(t.Cache.Read)
			tokens.CacheWrite = uint64(t.Cache.Write)
		}
	}
	// Some providers omit reasoning counts; estimate from the raw
	// reasoning text at ~4 chars per token.
	if tokens.Reasoning == 0 && isAssistant && data.reasoningChars > 0 {
		tokens.Reasoning = uint64(data.reasoningChars / 4)
	}

	if effectiveID != "" {
		if _, ok := fs.firstDays[effectiveID]; !ok {
			fs.firstDays[effectiveID] = day
		}
		s.Totals.Sessions[effectiveID] = true
	}
	s.Totals.Messages++
	if isUser && !isSubagent {
		s.Totals.Prompts++
	}
	s.Totals.Cost += cost
	s.Totals.Tokens.Add(tokens)

	if isAssistant {
		idx, ok := modelIndex[modelID]
		if !ok {
			idx = len(s.Models)
			modelIndex[modelID] = idx
			s.Models = append(s.Models, newModelUsage(modelID))
		}
		mu := &s.Models[idx]
		mu.Messages++
		if effectiveID != "" {
			mu.Sessions[effectiveID] = true
		}
		mu.Cost += cost
		mu.Tokens.Add(tokens)
		mu.DailyTokens[day] += tokens.Total()
		if data.hasCreated {
			mu.DailyLastHour[day] = uint8(time.UnixMilli(data.created).UTC().Hour())
		}
		if a := string(msg.Agent); a != "" {
			mu.Agents[a]++
		}
	}

	dayStat := s.Days[day]
	if dayStat == nil {
		dayStat = newDayStat()
		s.Days[day] = dayStat
	}
	dayStat.Messages++
	if isUser && !isSubagent {
		dayStat.Prompts++
	}
	dayStat.Cost += cost
	dayStat.Tokens.Add(tokens)

	sess := dayStat.Sessions[effectiveID]
	if sess == nil {
		sess = newSessionStat(effectiveID)
		if first, ok := fs.firstDays[effectiveID]; ok && effectiveID != "" && first != day {
			sess.FirstSeenDay = first
			sess.IsContinuation = true
		}
		dayStat.Sessions[effectiveID] = sess
	}
	sess.Messages++
	if isUser && !isSubagent {
		sess.Prompts++
	}
	sess.Cost += cost
	if isAssistant {
		sess.Models[modelID] = true
	}
	sess.Tokens.Add(tokens)

	if data.hasCreated {
		if data.created < sess.FirstActivity {
			sess.FirstActivity = data.created
		}
		if start, ok := fs.overallStart[effectiveID]; !ok || data.created < start {
			fs.overallStart[effectiveID] = data.created
		}
	}
	endTS, hasEnd := msg.CompletedMillis()
	if hasEnd && endTS > sess.LastActivity {
		sess.LastActivity = endTS
	}

	if isAssistant && data.hasCreated && hasEnd && endTS > data.created {
		iv := [2]int64{data.created, endTS}
		key := sessDayKey(effectiveID, day)
		fs.sessIntervals[key] = append(fs.sessIntervals[key], iv)
		akey := key + "|" + agentName
		fs.agentInterval[akey] = append(fs.agentInterval[akey], iv)
	}

	agent := findAgent(sess, agentName)
	if agent == nil {
		sess.Agents = append(sess.Agents, AgentInfo{
			Name:          agentName,
			IsMain:        !isSubagent,
			Models:        make(map[string]bool),
			FirstActivity: math.MaxInt64,
		})
		agent = &sess.Agents[len(sess.Agents)-1]
	}
	agent.Messages++
	agent.Tokens.Add(tokens)
	if isAssistant {
		agent.Models[modelID] = true
	}
	if data.hasCreated && data.created < agent.FirstActivity {
		agent.FirstActivity = data.created
	}
	if hasEnd && endTS > agent.LastActivity {
		agent.LastActivity = endTS
	}

	for _, tool := range data.tools {
		s.Totals.Tools[tool]++
		sess.Tools[tool]++
		if isAssistant {
			s.Models[modelIndex[modelID]].Tools[tool]++
		}
	}

	if p := msg.Path; p != nil {
		if p.Cwd != "" {
			sess.PathCwd = p.Cwd
		}
		if p.Root != "" {
			sess.PathRoot = p.Root
		}
	}

	if effectiveID != "" && len(data.inlineDiffs) > 0 {
		key := sessDayKey(effectiveID, day)
		byPath := fs.unionDiffs[key]
		if byPath == nil {
			byPath = make(map[string]FileDiff, len(data.inlineDiffs))
			fs.unionDiffs[key] = byPath
		}
		for _, d := range data.inlineDiffs {
			MergeFileDiff(byPath, d)
		}
	}
}

func newModelUsage(name string) ModelUsage {
	short := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		short = name[i+1:]
	}
	provider := name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		provider = name[:i]
	}
	return ModelUsage{
		Name:          name,
		ShortName:     short,
		Provider:      provider,
		DisplayName:   provider + "/" + short,
		Sessions:      make(map[string]bool),
		Tools:         make(map[string]uint64),
		Agents:        make(map[string]uint64),
		DailyTokens:   make(map[string]uint64),
		DailyLastHour: make(map[string]uint8),
	}
}

func findAgent(sess *SessionStat, name string) *AgentInfo {
	for i := range sess.Agents {
		if sess.Agents[i].Name == name {
			return &sess.Agents[i]
		}
	}
	return nil
}

// mergeIntervalsDuration sums the lengths of the union of intervals,
// so overlapping assistant turns are not double counted.
func mergeIntervalsDuration(intervals [][2]int64) int64 {
	if len(intervals) == 0 {
		return 0
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i][0] < intervals[j][0] })
	var total int64
	curStart, curEnd := intervals[0][0], intervals[0][1]
	for _, iv := range intervals[1:] {
		if iv[0] <= curEnd {
			if iv[1] > curEnd {
				curEnd = iv[1]
			}
			continue
		}
		total += curEnd - curStart
		curStart, curEnd = iv[0], iv[1]
	}
	total += curEnd - curStart
	return total
}

func applyIntervals(s *Stats, fs *foldState) {
	for key, intervals := range fs.sessIntervals {
		sessionID, day, ok := splitSessDayKey(key)
		if !ok {
			continue
		}
		if dayStat := s.Days[day]; dayStat != nil {
			if sess := dayStat.Sessions[sessionID]; sess != nil {
				sess.ActiveMS = mergeIntervalsDuration(intervals)
			}
		}
	}
	for key, intervals := range fs.agentInterval {
		sessionID, rest, ok := splitSessDayKey(key)
		if !ok {
			continue
		}
		day, agentName, ok := splitSessDayKey(rest)
		if !ok {
			continue
		}
		if dayStat := s.Days[day]; dayStat != nil {
			if sess := dayStat.Sessions[sessionID]; sess != nil {
				if agent := findAgent(sess, agentName); agent != nil {
					agent.ActiveMS = mergeIntervalsDuration(intervals)
				}
			}
		}
	}
}

func splitSessDayKey(key string) (string, string, bool) {
	return strings.Cut(key, "|")
}

// applySessionDiffs overlays the authoritative per-session diff store
// onto the provisional per-day accumulation, re-deriving all line
// totals from the deduplicated lists.
func applySessionDiffs(s *Stats, fs *foldState, b *storage.Backend, sessionDiffs map[string][]FileDiff) {
	diffTotals := make(map[string]Diffs, len(sessionDiffs))
	for id, diffs := range sessionDiffs {
		diffTotals[id] = DiffTotals(diffs)
	}
	for id, t := range b.SessionSummaryTotals() {
		if _, ok := diffTotals[id]; !ok {
			diffTotals[id] = Diffs{Additions: t[0], Deletions: t[1]}
		}
	}

	// Sorted day list per session, for previous-day lookups on
	// continuation days.
	sessionDays := make(map[string][]string)
	for key := range fs.unionDiffs {
		if sessionID, day, ok := splitSessDayKey(key); ok {
			sessionDays[sessionID] = append(sessionDays[sessionID], day)
		}
	}
	for _, days := range sessionDays {
		sort.Strings(days)
	}

	counted := make(map[string]bool)

	for day, dayStat := range s.Days {
		for sessionID, sess := range dayStat.Sessions {
			if start, ok := fs.overallStart[sessionID]; ok && start < sess.FirstActivity {
				sess.FirstActivity = start
			}

			var dayUnion []FileDiff
			if byPath := fs.unionDiffs[sessDayKey(sessionID, day)]; byPath != nil {
				dayUnion = flattenDiffs(byPath)
			}

			if !sess.IsContinuation {
				if diffs, ok := sessionDiffs[sessionID]; ok {
					sess.FileDiffs = append([]FileDiff(nil), diffs...)
					sess.Diffs = diffTotals[sessionID]
				} else if dayUnion != nil {
					sess.FileDiffs = dayUnion
					sess.Diffs = DiffTotals(dayUnion)
				} else if t, ok := diffTotals[sessionID]; ok {
					sess.Diffs = t
				}
			} else if dayUnion != nil {
				if days := sessionDays[sessionID]; len(days) > 0 {
					for pos, d := range days {
						if d == day && pos > 0 {
							prevKey := sessDayKey(sessionID, days[pos-1])
							if prevMap := fs.unionDiffs[prevKey]; prevMap != nil {
								dayUnion = incrementalDiffs(dayUnion, flattenDiffs(prevMap))
							}
							break
						}
					}
				}
				SortFileDiffs(dayUnion)
				sess.FileDiffs = dayUnion
				sess.Diffs = DiffTotals(dayUnion)
			}

			dayStat.Diffs.Additions += sess.Diffs.Additions
			dayStat.Diffs.Deletions += sess.Diffs.Deletions

			// Global totals take the authoritative final state once
			// per session, not per day.
			if !counted[sessionID] {
				counted[sessionID] = true
				if t, ok := diffTotals[sessionID]; ok {
					s.Totals.Diffs.Additions += t.Additions
					s.Totals.Diffs.Deletions += t.Deletions
				}
			}
		}
	}
}

func finalize(s *Stats) {
	sort.SliceStable(s.Models, func(i, j int) bool {
		return s.Models[i].Tokens.Total() > s.Models[j].Tokens.Total()
	})
	for _, dayStat := range s.Days {
		for _, sess := range dayStat.Sessions {
			sort.SliceStable(sess.Agents, func(i, j int) bool {
				a, b := sess.Agents[i], sess.Agents[j]
				if a.IsMain != b.IsMain {
					return a.IsMain
				}
				return a.Name < b.Name
			})
		}
	}
}
