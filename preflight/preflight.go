// Package preflight verifies, before deployment traffic arrives, that each
// function's execution role is allowed to call the AWS actions it needs.
// Decisions come from IAM policy simulation; nothing is invoked for real.
package preflight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/gurre/ddb-catalog/aws"
)

// Function names as deployed.
const (
	FuncGetProductsList     = "getProductsList"
	FuncGetProductsByID     = "getProductsById"
	FuncCreateProduct       = "createProduct"
	FuncCatalogBatchProcess = "catalogBatchProcess"
	FuncImportProductsFile  = "importProductsFile"
	FuncImportFileParser    = "importFileParser"
)

// Requirements lists the IAM actions each function calls. TransactWriteItems
// is authorized per contained action, so writers need PutItem and UpdateItem.
// Without s3:ListBucket a HeadObject on a missing key is answered with 403
// instead of 404.
var Requirements = map[string][]string{
	FuncGetProductsList:     {"dynamodb:Scan", "dynamodb:BatchGetItem"},
	FuncGetProductsByID:     {"dynamodb:BatchGetItem"},
	FuncCreateProduct:       {"dynamodb:PutItem"},
	FuncCatalogBatchProcess: {"dynamodb:PutItem", "dynamodb:UpdateItem", "sns:Publish"},
	FuncImportProductsFile:  {"s3:PutObject"},
	FuncImportFileParser:    {"s3:GetObject", "s3:ListBucket", "s3:PutObject", "s3:DeleteObject", "sqs:SendMessage"},
}

// Check is the simulation request for one function's role.
type Check struct {
	Function  string
	RoleARN   string
	Actions   []string
	Resources []string
}

// Checks builds one Check per function with a known role. roles maps
// function name to role ARN; functions without a role are skipped.
func Checks(roles map[string]string) []Check {
	names := make([]string, 0, len(roles))
	for fn := range roles {
		if _, ok := Requirements[fn]; ok {
			names = append(names, fn)
		}
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	for _, fn := range names {
		checks = append(checks, Check{
			Function: fn,
			RoleARN:  roles[fn],
			Actions:  Requirements[fn],
		})
	}
	return checks
}

// Result is the simulated decision for one action.
type Result struct {
	Function string
	Action   string
	Resource string
	Decision types.PolicyEvaluationDecisionType
}

// Allowed reports whether the simulation allowed the action.
func (r Result) Allowed() bool {
	return r.Decision == types.PolicyEvaluationDecisionTypeAllowed
}

// Report collects the results of all checks.
type Report struct {
	Results []Result
}

// Denied returns the results that were not allowed.
func (r Report) Denied() []Result {
	var denied []Result
	for _, res := range r.Results {
		if !res.Allowed() {
			denied = append(denied, res)
		}
	}
	return denied
}

func (r Report) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		fmt.Fprintf(&b, "%-20s %-22s %-14s %s\n", res.Function, res.Action, res.Decision, res.Resource)
	}
	return b.String()
}

// Checker runs policy simulations.
type Checker struct {
	client aws.IAMClient
}

// NewChecker creates a Checker.
func NewChecker(client aws.IAMClient) *Checker {
	return &Checker{client: client}
}

// Run simulates every check. An error is returned only when a simulation
// could not be performed; denied actions are reported in the Report.
func (c *Checker) Run(ctx context.Context, checks []Check) (Report, error) {
	var report Report
	for _, check := range checks {
		input := &iam.SimulatePrincipalPolicyInput{
			PolicySourceArn: &check.RoleARN,
			ActionNames:     check.Actions,
			ResourceArns:    check.Resources,
		}

		paginator := iam.NewSimulatePrincipalPolicyPaginator(c.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return report, fmt.Errorf("failed to simulate %s role %s: %w", check.Function, check.RoleARN, err)
			}
			for _, ev := range page.EvaluationResults {
				res := Result{Function: check.Function, Decision: ev.EvalDecision, Resource: "*"}
				if ev.EvalActionName != nil {
					res.Action = *ev.EvalActionName
				}
				if ev.EvalResourceName != nil {
					res.Resource = *ev.EvalResourceName
				}
				report.Results = append(report.Results, res)
			}
		}
	}
	return report, nil
}
