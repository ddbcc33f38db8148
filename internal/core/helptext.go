package core

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// HelpSpace is what %space% renders to. Discord strips plain leading spaces
// but keeps braille blanks.
const HelpSpace = "⠀⠀"

const (
	tagName  = "<n>"
	tagValue = "<v>"
)

// PopulateFields renders locale help lines into embed fields appended to
// fields. A row tagged <n> opens a new field named after the rest of the row,
// a row tagged <v> adds a line to the current field's value, an untagged row
// names the current field when it has no name yet and extends its value
// otherwise. A name on the very last row gets a "..." value so the field is
// never empty.
func PopulateFields(fields []*discordgo.MessageEmbedField, lines []string, name string) []*discordgo.MessageEmbedField {
	idx := len(fields)

	for i, row := range lines {
		if idx >= len(fields) {
			fields = append(fields, &discordgo.MessageEmbedField{})
		}
		field := fields[idx]

		row = strings.ReplaceAll(row, "%space%", HelpSpace)
		row = strings.ReplaceAll(row, "%name%", name)

		nameIdx := strings.Index(row, tagName)
		valueIdx := strings.Index(row, tagValue)

		switch {
		case nameIdx > -1:
			row = row[nameIdx+len(tagName):]
		case valueIdx > -1:
			row = row[valueIdx+len(tagValue):]
		case field.Name == "":
			nameIdx = 0
		default:
			valueIdx = 0
		}

		if nameIdx > -1 {
			if field.Name != "" {
				idx++
				field = &discordgo.MessageEmbedField{}
				fields = append(fields, field)
			}
			field.Name = row
			if i == len(lines)-1 {
				field.Value = HelpSpace + "..."
			}
			continue
		}

		if field.Value == "" {
			field.Value = row
		} else {
			field.Value += "\n" + row
		}
	}
	return fields
}
