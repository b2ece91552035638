package responder

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/kakao-relay/internal/service/upstream"
)

// Messages 用户可见的固定回复文案。
type Messages struct {
	EmptyUtterance string `yaml:"empty_utterance"`
	ConfigError    string `yaml:"config_error"`
	Timeout        string `yaml:"timeout"`
	UpstreamStatus string `yaml:"upstream_status"`
	EmptyAnswer    string `yaml:"empty_answer"`
	Generic        string `yaml:"generic"`
	Accepted       string `yaml:"accepted"`
}

// DefaultMessages returns the built-in Korean catalogue.
func DefaultMessages() Messages {
	return Messages{
		EmptyUtterance: "질문을 입력해 주세요.",
		ConfigError:    "서버 설정 오류로 답변할 수 없습니다. 관리자에게 문의해 주세요.",
		Timeout:        "답변을 준비하고 있어요. 잠시 후 다시 질문해 주세요.",
		UpstreamStatus: "일시적 오류가 발생했습니다. 잠시 후 다시 시도해 주세요.",
		EmptyAnswer:    "알맞은 답변을 찾지 못했어요. 질문을 바꿔서 다시 물어봐 주세요.",
		Generic:        "요청을 처리하는 중 오류가 발생했습니다.",
		Accepted:       "질문을 받았어요. 답변을 준비해서 곧 보내 드릴게요.",
	}
}

// LoadMessages reads a YAML catalogue over the defaults. Keys missing from
// the file keep their default text. An empty path returns the defaults.
func LoadMessages(path string) (Messages, error) {
	msgs := DefaultMessages()
	if strings.TrimSpace(path) == "" {
		return msgs, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Messages{}, fmt.Errorf("read messages file: %w", err)
	}

	var override Messages
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Messages{}, fmt.Errorf("parse messages file %s: %w", path, err)
	}

	msgs.merge(override)
	return msgs, nil
}

func (m *Messages) merge(o Messages) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&m.EmptyUtterance, o.EmptyUtterance)
	set(&m.ConfigError, o.ConfigError)
	set(&m.Timeout, o.Timeout)
	set(&m.UpstreamStatus, o.UpstreamStatus)
	set(&m.EmptyAnswer, o.EmptyAnswer)
	set(&m.Generic, o.Generic)
	set(&m.Accepted, o.Accepted)
}

// ForOutcome picks the fallback text for a failed upstream call.
func (m Messages) ForOutcome(outcome upstream.Outcome) string {
	switch outcome {
	case upstream.OutcomeTimeout:
		return m.Timeout
	case upstream.OutcomeStatus:
		return m.UpstreamStatus
	case upstream.OutcomeEmpty:
		return m.EmptyAnswer
	default:
		return m.Generic
	}
}
