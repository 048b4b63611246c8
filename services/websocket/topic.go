package websocket

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Topic kinds
const (
	KindCollection = "collection"
	KindDocument   = "document"
)

var (
	ErrBadTopic  = errors.New("invalid topic")
	ErrForbidden = errors.New("not allowed to subscribe to topic")

	collectionName = regexp.MustCompile(`^[a-z][a-z_]*$`)
)

// Topic identifies a listener subscription: a whole collection
// ("collection:courses") or one document ("document:applications/12").
type Topic struct {
	Kind       string
	Collection string
	ID         uint
}

func CollectionTopic(name string) Topic {
	return Topic{Kind: KindCollection, Collection: name}
}

func DocumentTopic(name string, id uint) Topic {
	return Topic{Kind: KindDocument, Collection: name, ID: id}
}

func (t Topic) String() string {
	if t.Kind == KindDocument {
		return fmt.Sprintf("%s:%s/%d", KindDocument, t.Collection, t.ID)
	}
	return KindCollection + ":" + t.Collection
}

// ParseTopic parses the wire form of a topic.
func ParseTopic(s string) (Topic, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Topic{}, ErrBadTopic
	}
	switch kind {
	case KindCollection:
		if !collectionName.MatchString(rest) {
			return Topic{}, ErrBadTopic
		}
		return CollectionTopic(rest), nil
	case KindDocument:
		name, idStr, ok := strings.Cut(rest, "/")
		if !ok || !collectionName.MatchString(name) {
			return Topic{}, ErrBadTopic
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil || id == 0 {
			return Topic{}, ErrBadTopic
		}
		return DocumentTopic(name, uint(id)), nil
	}
	return Topic{}, ErrBadTopic
}
