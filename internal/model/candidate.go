package model

import "time"

// DateLayout は生年月日の入出力に使う固定フォーマット（YYYY-MM-DD）。
const DateLayout = "2006-01-02"

// Candidate は台帳に登録された候補者を表す。
// SequenceID は台帳が採番し、投票時の識別子として使う。
// VoteCount 以外は作成後に変更されない。
type Candidate struct {
	SequenceID      uint64
	Name            string
	Age             int
	DateOfBirth     time.Time
	Region          string
	YearsExperience int
	PhotoFile       string
	ManifestoFile   string
	VoteCount       uint64
}

// DateOfBirthString は生年月日をUTCのYYYY-MM-DD形式で返す。
func (c *Candidate) DateOfBirthString() string {
	return c.DateOfBirth.UTC().Format(DateLayout)
}

// CandidateFields は候補者登録フォームの未加工の入力値。
type CandidateFields struct {
	Name       string
	Age        string
	DOB        string
	Region     string
	Experience string
}

// VoteReceipt は投票トランザクションの結果。
type VoteReceipt struct {
	CandidateID     uint64
	VoterAddress    string
	TransactionHash string
	BlockNumber     uint64
}

// Winner は現時点の最多得票候補者を表す。
type Winner struct {
	Name  string
	Votes uint64
}
