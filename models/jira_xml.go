package models

import (
	"encoding/xml"
	"strings"
)

// JiraExport はJiraのsearchrequest-xmlエクスポート1ファイル分を表します
type JiraExport struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel はエクスポートに含まれるitemのリストです
type Channel struct {
	Items []Item `xml:"item"`
}

// Item はエクスポートされたissue1件分です
// 任意要素はポインタで表現し、存在チェックはnil比較で行います（属性アクセス例外に頼りません）
type Item struct {
	Project        *ProjectRef     `xml:"project"`
	Key            string          `xml:"key"`
	Title          string          `xml:"title"`
	Link           string          `xml:"link"`
	Type           string          `xml:"type"`
	Status         *string         `xml:"status"`
	StatusCategory *StatusCategory `xml:"statusCategory"`
	Priority       *string         `xml:"priority"`
	Resolution     *string         `xml:"resolution"`
	Reporter       *UserRef        `xml:"reporter"`
	Assignee       *UserRef        `xml:"assignee"`
	Created        string          `xml:"created"`
	Updated        string          `xml:"updated"`
	Resolved       *string         `xml:"resolved"`
	Votes          int             `xml:"votes"`
	Watches        int             `xml:"watches"`
	FixVersion     *string         `xml:"fixVersion"`
	Components     []string        `xml:"component"`
	Labels         *LabelList      `xml:"labels"`
	Environment    *string         `xml:"environment"`
	Description    *string         `xml:"description"`
	Attachments    *AttachmentList `xml:"attachments"`
	Comments       *CommentList    `xml:"comments"`
	Subtasks       *SubtaskList    `xml:"subtasks"`
	Parent         *string         `xml:"parent"`
	IssueLinks     *IssueLinkList  `xml:"issuelinks"`
	CustomFields   *CustomFields   `xml:"customfields"`
}

// ProjectRef はitemの所属プロジェクトです
type ProjectRef struct {
	Key  string `xml:"key,attr"`
	Name string `xml:",chardata"`
}

// StatusCategory はステータスカテゴリ（Done判定に使用）です
type StatusCategory struct {
	ID string `xml:"id,attr"`
}

// UserRef はreporter/assignee等のユーザー参照です
type UserRef struct {
	Username string `xml:"username,attr"`
	Name     string `xml:",chardata"`
}

// LabelList はlabels要素です
type LabelList struct {
	Label []string `xml:"label"`
}

// AttachmentList はattachments要素です
type AttachmentList struct {
	Attachment []Attachment `xml:"attachment"`
}

// Attachment は添付ファイル1件分です
type Attachment struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// CommentList はcomments要素です
type CommentList struct {
	Comment []ItemComment `xml:"comment"`
}

// ItemComment はエクスポートに含まれるコメント1件分です
type ItemComment struct {
	ID      string `xml:"id,attr"`
	Author  string `xml:"author,attr"`
	Created string `xml:"created,attr"`
	Text    string `xml:",chardata"`
}

// SubtaskList はsubtasks要素です
type SubtaskList struct {
	Subtask []string `xml:"subtask"`
}

// IssueLinkList はissuelinks要素です
type IssueLinkList struct {
	IssueLinkType []IssueLinkType `xml:"issuelinktype"`
}

// IssueLinkType はリンク種別ごとのoutward/inwardリンク群です
type IssueLinkType struct {
	Name         string      `xml:"name"`
	OutwardLinks []LinkGroup `xml:"outwardlinks"`
	InwardLinks  []LinkGroup `xml:"inwardlinks"`
}

// LinkGroup は同一方向のリンクのまとまりです（descriptionが関係の種類になります）
type LinkGroup struct {
	Description string      `xml:"description,attr"`
	IssueLink   []IssueLink `xml:"issuelink"`
}

// IssueLink はリンク1件分です
type IssueLink struct {
	IssueKey []string `xml:"issuekey"`
}

// CustomFields はcustomfields要素です
type CustomFields struct {
	CustomField []CustomField `xml:"customfield"`
}

// CustomField はカスタムフィールド1件分です
type CustomField struct {
	Key    string            `xml:"key,attr"`
	Values CustomFieldValues `xml:"customfieldvalues"`
}

// CustomFieldValues はカスタムフィールドの値リストです
type CustomFieldValues struct {
	Value []string `xml:"customfieldvalue"`
}

// ProjectKey はitemの所属プロジェクトキーを返します
// project要素がない場合はissueキーのプレフィックスから導出します
func (i *Item) ProjectKey() string {
	if i.Project != nil && i.Project.Key != "" {
		return i.Project.Key
	}
	return strings.SplitN(i.Key, "-", 2)[0]
}

// SourceLabels はエクスポート元のラベルを返します（labels要素がなければ空）
func (i *Item) SourceLabels() []string {
	if i.Labels == nil {
		return nil
	}
	return i.Labels.Label
}

// EpicLinkKey はepic-linkカスタムフィールドの値を返します（なければ空文字列）
func (i *Item) EpicLinkKey() string {
	if i.CustomFields == nil {
		return ""
	}
	for _, field := range i.CustomFields.CustomField {
		if field.Key == "com.pyxis.greenhopper.jira:gh-epic-link" {
			if len(field.Values.Value) > 0 {
				return field.Values.Value[0]
			}
		}
	}
	return ""
}

// DescriptionText はdescription本文を返します（要素がなければ空文字列）
func (i *Item) DescriptionText() string {
	if i.Description == nil {
		return ""
	}
	return *i.Description
}
