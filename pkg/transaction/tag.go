package transaction

import "github.com/LumeraProtocol/weave/pkg/deephash"

// MaxTags is the largest number of tags a transaction may carry.
const MaxTags = 128

// Tag is a name/value pair attached to a transaction.
type Tag struct {
	Name  Base64 `json:"name" validate:"min=1"`
	Value Base64 `json:"value"`
}

// NewTag builds a tag from UTF-8 strings.
func NewTag(name, value string) Tag {
	return Tag{Name: FromUTF8String(name), Value: FromUTF8String(value)}
}

// Strings decodes the tag back to UTF-8 strings.
func (t Tag) Strings() (name, value string, err error) {
	if name, err = t.Name.ToUTF8String(); err != nil {
		return "", "", err
	}
	if value, err = t.Value.ToUTF8String(); err != nil {
		return "", "", err
	}
	return name, value, nil
}

// tagsItem maps tags to their deep-hash form: an empty blob when there are
// none, otherwise a list of [name, value] lists.
func tagsItem(tags []Tag) deephash.Item {
	if len(tags) == 0 {
		return deephash.Blob{}
	}
	items := make(deephash.List, len(tags))
	for i, t := range tags {
		items[i] = deephash.List{deephash.Blob(t.Name), deephash.Blob(t.Value)}
	}
	return items
}
