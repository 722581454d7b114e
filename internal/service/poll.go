package service

import (
	"strings"

	"github.com/google/uuid"

	"github.com/d60-Lab/blogpost/internal/model"
)

// PollOptionInput 提交的选项；ID 为空表示新选项或旧客户端
type PollOptionInput struct {
	ID   string
	Text string
}

// PollSubmission 提交的投票；nil 表示本次请求没有涉及投票字段
type PollSubmission struct {
	Question string
	Options  []PollOptionInput
}

// ReconcilePoll 合并提交的投票与旧投票：
//   - sub 为 nil，或编辑时问题为空：原样返回 prev
//   - 去掉空白选项后为空：投票被移除，返回 nil
//   - 否则按提交顺序生成选项。优先按 ID 匹配旧选项，没有 ID 时按文案匹配第一个未被占用的旧选项；
//     匹配上的沿用 ID 和票数，否则分配新 ID、票数为 0
//
// 创建时问题为空默认为 "Poll"。
func ReconcilePoll(prev *model.Poll, sub *PollSubmission, creating bool) *model.Poll {
	if sub == nil {
		return prev
	}
	question := strings.TrimSpace(sub.Question)
	if question == "" {
		if !creating {
			return prev
		}
		question = model.DefaultPollQuestion
	}

	inputs := make([]PollOptionInput, 0, len(sub.Options))
	for _, o := range sub.Options {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			continue
		}
		inputs = append(inputs, PollOptionInput{ID: strings.TrimSpace(o.ID), Text: text})
	}
	if len(inputs) == 0 {
		return nil
	}

	var previous []model.PollOption
	if prev != nil {
		previous = prev.Options
	}
	claimed := make([]bool, len(previous))

	match := func(in PollOptionInput) int {
		if in.ID != "" {
			for i, p := range previous {
				if !claimed[i] && p.ID == in.ID {
					return i
				}
			}
			return -1
		}
		for i, p := range previous {
			if !claimed[i] && p.Text == in.Text {
				return i
			}
		}
		return -1
	}

	poll := &model.Poll{Question: question, Options: make([]model.PollOption, len(inputs))}
	if prev != nil {
		poll.PostID = prev.PostID
	}
	for i, in := range inputs {
		opt := model.PollOption{Text: in.Text, Position: i}
		if j := match(in); j >= 0 {
			claimed[j] = true
			opt.ID = previous[j].ID
			opt.Votes = previous[j].Votes
		} else {
			opt.ID = uuid.NewString()
		}
		poll.Options[i] = opt
	}
	return poll
}
