package httputil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	cases := []struct {
		query   string
		want    Page
		wantErr string
	}{
		{query: "", want: Page{Number: 1, Size: 20}},
		{query: "page=3&per_page=50", want: Page{Number: 3, Size: 50}},
		{query: "page=0", want: Page{Number: 1, Size: 20}},
		{query: "page=-4&per_page=100", want: Page{Number: 1, Size: 100}},
		{query: "page=two", wantErr: "invalid page parameter"},
		{query: "per_page=x", wantErr: "invalid per_page parameter"},
		{query: "per_page=0", wantErr: "between 1 and 100"},
		{query: "per_page=101", wantErr: "between 1 and 100"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)

			got, err := ParsePage(q)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
