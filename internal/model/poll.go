package model

// DefaultPollQuestion 创建时未填问题的占位
const DefaultPollQuestion = "Poll"

// Poll 文章内嵌投票（1:1，主键即 post_id）
type Poll struct {
	PostID   string       `json:"-" gorm:"primaryKey;type:varchar(36)"`
	Question string       `json:"question" gorm:"type:text;not null"`
	Options  []PollOption `json:"options" gorm:"foreignKey:PostID;references:PostID"`
}

func (Poll) TableName() string { return "polls" }

// PollOption 投票选项；ID 在首次创建时分配，编辑时按 ID 继承票数
type PollOption struct {
	ID       string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PostID   string `json:"-" gorm:"type:varchar(36);index:idx_option_post_pos;not null"`
	Position int    `json:"-" gorm:"index:idx_option_post_pos;not null"`
	Text     string `json:"text" gorm:"type:text;not null"`
	Votes    int64  `json:"votes" gorm:"not null;default:0"`
}

func (PollOption) TableName() string { return "poll_options" }

// TotalVotes 所有选项票数之和
func (p *Poll) TotalVotes() int64 {
	var total int64
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// Percentages 各选项占比（四舍五入取整），总票数为 0 时全为 0
func (p *Poll) Percentages() []int {
	out := make([]int, len(p.Options))
	total := p.TotalVotes()
	if total == 0 {
		return out
	}
	for i, o := range p.Options {
		out[i] = int((o.Votes*100 + total/2) / total)
	}
	return out
}
