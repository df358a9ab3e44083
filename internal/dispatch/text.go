package dispatch

import (
	"github.com/tidwall/gjson"

	"github.com/telnet2/wamux/pkg/types"
)

// ExtractText returns the command-bearing text of a message. Shapes that
// carry no text yield "".
func ExtractText(c types.Content) string {
	switch c.Kind {
	case types.KindConversation, types.KindExtendedText:
		return c.Text
	case types.KindImage, types.KindVideo:
		return c.Caption
	case types.KindButtonsResponse, types.KindListResponse, types.KindTemplateButtonReply:
		return c.SelectedID
	case types.KindInteractiveResponse:
		return paramsID(c.ParamsJSON)
	case types.KindContextInfo:
		if c.SelectedID != "" {
			return c.SelectedID
		}
		if id := paramsID(c.ParamsJSON); id != "" {
			return id
		}
		return c.Text
	default:
		return ""
	}
}

// paramsID reads the "id" field of a native-flow response. Invalid JSON
// yields "".
func paramsID(params string) string {
	if params == "" || !gjson.Valid(params) {
		return ""
	}
	return gjson.Get(params, "id").String()
}
