package stats

import (
	"math"
	"strings"

	"github.com/theirongolddev/oburn/internal/record"
)

// ApplyMessage merges a single message record into the aggregate. A
// previously seen identity has its old contribution subtracted first,
// so re-delivered records never double count. Returns the effective
// session id the message landed on.
func ApplyMessage(s *Stats, st *SideTables, diffMap map[string][]FileDiff, diffTotals map[string]Diffs, msg *record.Message, path string) string {
	identity := string(msg.ID)
	if identity == "" {
		identity = path
	}

	created, hasCreated := msg.CreatedMillis()
	day := record.Day(created, hasCreated)
	role := string(msg.Role)
	isUser := role == "user"
	isAssistant := role == "assistant"
	modelID := msg.ModelIdentity()
	contrib := messageContribution(msg)

	agentName := string(msg.Agent)
	if agentName == "" {
		agentName = "unknown"
	}

	rawSessionID := string(msg.SessionID)
	sessionID := rawSessionID
	if root, ok := s.Parents[rawSessionID]; ok {
		sessionID = root
	}
	isSubagent := sessionID != rawSessionID

	old, seen := st.Contributions[identity]
	if seen {
		subtractContribution(s, &old, day, sessionID, modelID, agentName, isAssistant)
	} else {
		s.Totals.Messages++
		if isUser && !isSubagent {
			s.Totals.Prompts++
		}
	}
	st.Contributions[identity] = contrib
	s.Processed[identity] = true

	if rawSessionID != "" {
		files := s.SessionFiles[rawSessionID]
		if files == nil {
			files = make(map[string]bool)
			s.SessionFiles[rawSessionID] = files
		}
		files[path] = true
	}

	s.Totals.Tokens.Add(contrib.Tokens)
	s.Totals.Cost += contrib.Cost
	if sessionID != "" {
		s.Totals.Sessions[sessionID] = true
	}

	if isAssistant {
		mu := findModel(s, modelID)
		if mu == nil {
			s.Models = append(s.Models, newModelUsage(modelID))
			mu = &s.Models[len(s.Models)-1]
		}
		if !seen {
			mu.Messages++
			if a := string(msg.Agent); a != "" {
				mu.Agents[a]++
			}
		}
		mu.Cost += contrib.Cost
		mu.Tokens.Add(contrib.Tokens)
		if sessionID != "" {
			mu.Sessions[sessionID] = true
		}
		mu.DailyTokens[day] += contrib.Tokens.Total()
	}

	dayStat := s.Days[day]
	if dayStat == nil {
		dayStat = newDayStat()
		s.Days[day] = dayStat
	}
	if !seen {
		dayStat.Messages++
		if isUser && !isSubagent {
			dayStat.Prompts++
		}
	}
	dayStat.Cost += contrib.Cost
	dayStat.Tokens.Add(contrib.Tokens)

	sess := dayStat.Sessions[sessionID]
	if sess == nil {
		sess = newSessionStat(sessionID)
		dayStat.Sessions[sessionID] = sess
	}
	if !seen {
		sess.Messages++
		if isUser && !isSubagent {
			sess.Prompts++
		}
	}
	sess.Cost += contrib.Cost
	sess.ActiveMS += contrib.DurationMS
	if isAssistant {
		sess.Models[modelID] = true
	}
	sess.Tokens.Add(contrib.Tokens)
	if hasCreated && created < sess.FirstActivity {
		sess.FirstActivity = created
	}
	endTS, hasEnd := msg.CompletedMillis()
	if hasEnd && endTS > sess.LastActivity {
		sess.LastActivity = endTS
	}
	if p := msg.Path; p != nil {
		if p.Cwd != "" {
			sess.PathCwd = p.Cwd
		}
		if p.Root != "" {
			sess.PathRoot = p.Root
		}
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
	if !seen {
		agent.Messages++
	}
	agent.Tokens.Add(contrib.Tokens)
	agent.ActiveMS += contrib.DurationMS
	if isAssistant {
		agent.Models[modelID] = true
	}
	if hasCreated && created < agent.FirstActivity {
		agent.FirstActivity = created
	}
	if hasEnd && endTS > agent.LastActivity {
		agent.LastActivity = endTS
	}

	mergeMessageDiffs(s, st, diffMap, diffTotals, msg, sessionID, day)
	if sessionID != "" {
		st.RecordSessionDay(sessionID, day)
		refreshSessionDiffs(s, st, diffMap, diffTotals, sessionID, day)
	}
	return sessionID
}

func subtractContribution(s *Stats, old *Contribution, day, sessionID, modelID, agentName string, isAssistant bool) {
	s.Totals.Tokens.Sub(old.Tokens)
	s.Totals.Cost -= old.Cost
	if isAssistant {
		if mu := findModel(s, modelID); mu != nil {
			mu.Cost -= old.Cost
			mu.Tokens.Sub(old.Tokens)
		}
	}
	dayStat := s.Days[day]
	if dayStat == nil {
		return
	}
	dayStat.Cost -= old.Cost
	dayStat.Tokens.Sub(old.Tokens)
	sess := dayStat.Sessions[sessionID]
	if sess == nil {
		return
	}
	sess.Cost -= old.Cost
	sess.Tokens.Sub(old.Tokens)
	sess.ActiveMS -= min(sess.ActiveMS, old.DurationMS)
	if agent := findAgent(sess, agentName); agent != nil {
		agent.Tokens.Sub(old.Tokens)
		agent.ActiveMS -= min(agent.ActiveMS, old.DurationMS)
	}
}

// mergeMessageDiffs folds the message's inline diff summary into the
// session's union state and replaces the session's authoritative diff
// view with the newest cumulative snapshot.
func mergeMessageDiffs(s *Stats, st *SideTables, diffMap map[string][]FileDiff, diffTotals map[string]Diffs, msg *record.Message, sessionID, day string) {
	if sessionID == "" || msg.Summary == nil || len(msg.Summary.Diffs) == 0 {
		return
	}
	incoming := make([]FileDiff, 0, len(msg.Summary.Diffs))
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
			incoming = append(incoming, fd)
		}
	}
	if len(incoming) == 0 {
		return
	}

	key := sessDayKey(sessionID, day)
	byPath := st.SessionDayDiffs[key]
	if byPath == nil {
		byPath = make(map[string]FileDiff, len(incoming))
		st.SessionDayDiffs[key] = byPath
	}
	for _, d := range incoming {
		MergeFileDiff(byPath, d)
	}

	sorted := append([]FileDiff(nil), incoming...)
	SortFileDiffs(sorted)
	diffMap[sessionID] = sorted
	newTotals := DiffTotals(sorted)

	if old, ok := diffTotals[sessionID]; ok {
		s.Totals.Diffs.Additions = satSub(s.Totals.Diffs.Additions, old.Additions)
		s.Totals.Diffs.Deletions = satSub(s.Totals.Diffs.Deletions, old.Deletions)
	}
	s.Totals.Diffs.Additions += newTotals.Additions
	s.Totals.Diffs.Deletions += newTotals.Deletions
	diffTotals[sessionID] = newTotals
}

// refreshSessionDiffs re-derives the per-day diff view of one session
// from the touched day onward, then rebuilds the affected day totals.
func refreshSessionDiffs(s *Stats, st *SideTables, diffMap map[string][]FileDiff, diffTotals map[string]Diffs, sessionID, day string) {
	days := st.SessionDays[sessionID]
	if len(days) == 0 {
		return
	}
	firstDay := days[0]
	startPos := 0
	for i, d := range days {
		if d == day {
			startPos = i
			break
		}
	}
	affected := days[startPos:]
	if startPos+1 >= len(days) {
		affected = days[startPos : startPos+1]
	}

	for offset, dayStr := range affected {
		idx := startPos + offset
		dayStat := s.Days[dayStr]
		if dayStat == nil {
			dayStat = newDayStat()
			s.Days[dayStr] = dayStat
		}
		sess := dayStat.Sessions[sessionID]
		if sess == nil {
			sess = newSessionStat(sessionID)
			dayStat.Sessions[sessionID] = sess
		}

		isContinuation := dayStr != firstDay
		sess.IsContinuation = isContinuation
		if isContinuation {
			sess.FirstSeenDay = firstDay
		} else {
			sess.FirstSeenDay = ""
		}

		var dayUnion []FileDiff
		if byPath := st.SessionDayDiffs[sessDayKey(sessionID, dayStr)]; byPath != nil {
			dayUnion = flattenDiffs(byPath)
		}

		if !isContinuation {
			if diffs, ok := diffMap[sessionID]; ok {
				sess.FileDiffs = append([]FileDiff(nil), diffs...)
				if t, ok := diffTotals[sessionID]; ok {
					sess.Diffs = t
				} else {
					sess.Diffs = DiffTotals(sess.FileDiffs)
				}
			} else {
				sess.FileDiffs = dayUnion
				sess.Diffs = DiffTotals(dayUnion)
			}
		} else {
			if idx > 0 {
				prevKey := sessDayKey(sessionID, days[idx-1])
				if prevMap := st.SessionDayDiffs[prevKey]; prevMap != nil {
					dayUnion = incrementalDiffs(dayUnion, flattenDiffs(prevMap))
				}
			}
			SortFileDiffs(dayUnion)
			sess.FileDiffs = dayUnion
			sess.Diffs = DiffTotals(dayUnion)
		}

		var adds, dels uint64
		for _, ss := range dayStat.Sessions {
			adds += ss.Diffs.Additions
			dels += ss.Diffs.Deletions
		}
		dayStat.Diffs = Diffs{Additions: adds, Deletions: dels}
	}
}

// ApplyPart folds one part record's coarse signals: tool tallies and
// raw +/- prefixed line counts from its text.
func ApplyPart(s *Stats, part *record.Part) {
	if part.Type == "tool" && part.Tool != "" {
		s.Totals.Tools[part.Tool]++
	}
	if part.Text == "" {
		return
	}
	var adds, dels uint64
	for _, line := range strings.Split(part.Text, "\n") {
		if strings.HasPrefix(line, "+") {
			adds++
		} else if strings.HasPrefix(line, "-") {
			dels++
		}
	}
	s.Totals.Diffs.Additions += adds
	s.Totals.Diffs.Deletions += dels
}

func findModel(s *Stats, name string) *ModelUsage {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return &s.Models[i]
		}
	}
	return nil
}
