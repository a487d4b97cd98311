package prompts

import "github.com/yungbote/coursegen/internal/domain/content"

func str() map[string]any { return map[string]any{"type": "string"} }
func integer() map[string]any { return map[string]any{"type": "integer"} }

func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func CoursePlanSchema() map[string]any {
	return object(map[string]any{
		"title":       str(),
		"description": str(),
		"subject":     str(),
		"modules": array(object(map[string]any{
			"title":              str(),
			"summary":            str(),
			"estimated_chapters": integer(),
		})),
	})
}

func ModuleOutlineSchema() map[string]any {
	return object(map[string]any{
		"chapters": array(object(map[string]any{
			"title":   str(),
			"outline": str(),
		})),
	})
}

func ChapterContentSchema() map[string]any {
	return object(map[string]any{
		"blocks": array(content.WireSchema()),
	})
}

func ModuleQuizSchema() map[string]any {
	return object(map[string]any{
		"questions": array(object(map[string]any{
			"prompt":       str(),
			"options":      array(str()),
			"answer_index": integer(),
			"explanation":  str(),
		})),
	})
}
