package tabular

import (
	"strings"
	"testing"
)

func TestRepair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		invalid bool
	}{
		{
			name: "preamble_and_long_row",
			in:   "Here are the cases:\n" + header + "\nTC-1,a,b,c,d,e,f,功能,附加说明",
			want: header + "\r\nTC-1,a,b,c,d,e,f,\"功能,附加说明\"\r\n",
		},
		{
			name: "short_row_padded_and_trimmed",
			in:   header + "\n TC-2 , a ,b",
			want: header + "\r\nTC-2,a,b,,,,,\r\n",
		},
		{
			name: "blank_rows_dropped",
			in:   header + "\n,,,,,,,\n" + row(3),
			want: header + "\r\n" + row(3) + "\r\n",
		},
		{
			name: "full_width_commas",
			in:   strings.Join(DefaultColumns, "，") + "\nTC-4，a，b，c，d，e，f，g",
			want: header + "\r\nTC-4,a,b,c,d,e,f,g\r\n",
		},
		{
			name: "fuzzy_header_with_extra_column",
			in:   header + ",备注\nTC-5,a,b,c,d,e,f,g,h",
			want: header + "\r\nTC-5,a,b,c,d,e,f,\"g,h\"\r\n",
		},
		{
			name: "repeated_header_dropped",
			in:   header + "\n" + row(1) + "\n" + header + "\n" + row(2),
			want: header + "\r\n" + row(1) + "\r\n" + row(2) + "\r\n",
		},
		{
			name: "code_fence",
			in:   "```csv\n" + header + "\n" + row(6) + "\n```",
			want: header + "\r\n" + row(6) + "\r\n",
		},
		{
			name:    "no_header_returned_unchanged",
			in:      "I could not produce test cases.",
			want:    "I could not produce test cases.",
			invalid: true,
		},
		{
			name: "json_array_of_arrays",
			in:   `[["TC-7","a","b","c","d",["1. open","2. save"],"f","g"]]`,
			want: header + "\r\nTC-7,a,b,c,d,\"1. open\r\n2. save\",f,g\r\n",
		},
		{
			name: "json_objects_broken",
			in:   `[{"用例ID": "TC-8", "模块": "登录", "用例类型": "功能"},`,
			want: header + "\r\nTC-8,登录,,,,,,功能\r\n",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Repair(tc.in)
			if got != tc.want {
				t.Fatalf("Repair mismatch\n got: %q\nwant: %q", got, tc.want)
			}
			if tc.invalid || tc.in == "" {
				return
			}
			if err := Validate(got); err != nil {
				t.Fatalf("repaired output does not validate: %v", err)
			}
		})
	}
}

func TestRepairIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"no csv here",
		header + "\n" + row(1),
		"intro\n" + header + "\nTC-1,a,\"b \"\"quoted\"\"\",c\n\nTC-2,a,b,c,d,e,f,g,h,i",
		strings.Join(DefaultColumns, "，") + "\nTC-3，步骤一，步骤二\nTC-4,\"multi\nline\",x",
		header + "\nTC-5,a,b\"c,d,e,f,g,h",
		`[["TC-6","a"],{"用例ID":"TC-7"}]`,
		"```\n" + header + ",extra\n" + row(8) + ",x,y\n```",
	}

	for _, in := range inputs {
		once := Repair(in)
		twice := Repair(once)
		if once != twice {
			t.Fatalf("Repair is not idempotent for %q\n once: %q\ntwice: %q", in, once, twice)
		}
		if err := Validate(once); err == nil {
			if err := Validate(twice); err != nil {
				t.Fatalf("validation result changed after second repair: %v", err)
			}
		}
	}
}
