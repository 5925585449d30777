// 多行文本的并排对比，测试断言失败时用来定位差异行。
// 树状渲染和总线汇总都是多行文本，肉眼比对太费劲
package diffutil

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type DiffLine struct {
	Left  string
	Right string
	Mark  string // "|", "+", "-", "~"
}

func CompareMultiline(before, after string) []DiffLine {
	dmp := diffmatchpatch.New()
	text1, text2, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(text1, text2, false)
	dmp.DiffCleanupSemantic(diffs)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var result []DiffLine
	i := 0
	for i < len(diffs) {
		d := diffs[i]
		if d.Type == diffmatchpatch.DiffDelete &&
			i+1 < len(diffs) &&
			diffs[i+1].Type == diffmatchpatch.DiffInsert {

			delLines := strings.Split(d.Text, "\n")
			insLines := strings.Split(diffs[i+1].Text, "\n")

			maxLen := max(len(delLines), len(insLines))
			for i := 0; i < maxLen; i++ {
				l, r := "", ""
				if i < len(delLines) {
					l = delLines[i]
				}
				if i < len(insLines) {
					r = insLines[i]
				}
				// 配不上对的尾巴是纯增删，不能折成修改行
				switch {
				case l == "" && r == "":
					continue
				case l == "":
					result = append(result, DiffLine{Right: r, Mark: "+"})
				case r == "":
					result = append(result, DiffLine{Left: l, Mark: "-"})
				case l == r:
					result = append(result, DiffLine{Left: l, Right: r, Mark: "|"})
				default:
					result = append(result, DiffLine{Left: l, Right: r, Mark: "~"})
				}
			}
			i += 2
			continue
		}

		lines := strings.Split(d.Text, "\n")
		for _, line := range lines {
			if line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				result = append(result, DiffLine{Left: line, Right: line, Mark: "|"})
			case diffmatchpatch.DiffDelete:
				result = append(result, DiffLine{Left: line, Right: "", Mark: "-"})
			case diffmatchpatch.DiffInsert:
				result = append(result, DiffLine{Left: "", Right: line, Mark: "+"})
			}
		}
		i++
	}
	return result
}

