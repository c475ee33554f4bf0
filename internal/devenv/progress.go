package devenv

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	markOK   = text.FgGreen.Sprint("✓")
	markFail = text.FgRed.Sprint("✗")
	markWarn = text.FgYellow.Sprint("!")
	markInfo = text.FgBlue.Sprint("i")
)

// progress は長い処理の間スピナーを表示する。
// 端末以外ではスピナーは描画されず、完了メッセージのみ出力される。
type progress struct {
	out io.Writer
	s   *spinner.Spinner
}

func newProgress(out io.Writer) *progress {
	return &progress{
		out: out,
		s:   spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out)),
	}
}

// Message は進行中のメッセージを表示する。
func (p *progress) Message(msg string) {
	p.s.Suffix = " " + msg
	p.s.Start()
}

// Done はスピナーを止め、成功メッセージを出力する。
func (p *progress) Done(msg string) {
	p.s.Stop()
	fmt.Fprintf(p.out, "%s %s\n", markOK, msg)
}

// Fail はスピナーを止め、失敗メッセージを出力する。
func (p *progress) Fail(msg string) {
	p.s.Stop()
	fmt.Fprintf(p.out, "%s %s\n", markFail, msg)
}
