// Command seed creates the predefined service-catalog workflow so a fresh
// environment has something to run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"flowpilot/internal/config"
	"flowpilot/internal/core/postgres/repository"
	"flowpilot/internal/domain"
	"flowpilot/internal/logging"
	"flowpilot/internal/service"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	authorFlag := flag.String("author", "", "author user id (uuid, required)")
	categoryFlag := flag.String("category", "Banking", "industry the catalog targets")
	flag.Parse()

	authorID, err := uuid.Parse(*authorFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "seed: -author must be a valid uuid")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "seed: failed to load config:", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)
	logger := logging.WithComponent("seed")

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := repository.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	workflows := service.NewWorkflowService(repository.NewWorkflowRepository(db))

	def, steps, err := workflows.Create(context.Background(),
		serviceCatalogWorkflow(authorID, *categoryFlag))
	if err != nil {
		logger.Error("failed to seed workflow", "error", err)
		os.Exit(1)
	}

	logger.Info("seeded service catalog workflow",
		"workflow_id", def.ID, "title", def.Title, "steps", len(steps))
}

// serviceCatalogWorkflow is the stock engagement: taxonomy intake, AI
// structuring and enrichment, consultant reviews, a client upload window, and
// a generated deliverable.
func serviceCatalogWorkflow(authorID uuid.UUID, category string) service.CreateWorkflowRequest {
	return service.CreateWorkflowRequest{
		AuthorID: authorID,
		Title:    "Service Catalog - " + category,
		Description: fmt.Sprintf("A comprehensive workflow for developing a service catalog for %s organizations, "+
			"leveraging APQC taxonomy and AI-driven analysis.", category),
		Category: "service_catalog",
		Steps: []service.StepInput{
			{
				Kind:  domain.StepHuman,
				Label: "Upload APQC/Base Taxonomy",
				Instructions: "Upload an Excel or CSV file containing the APQC taxonomy or other process " +
					"framework you want to use as a base for your service catalog.",
			},
			{
				Kind:  domain.StepAI,
				Label: "Extract and Structure Taxonomy",
				SystemPrompt: "You are an expert in business process frameworks and taxonomies. " +
					"Your task is to analyze the provided data and extract a structured process taxonomy.",
				UserPromptTemplate: `Extract and structure the process taxonomy from the following data:
{{taxonomyData}}

Format as hierarchical JSON with:
- L1: Major process areas
- L2: Process groups
- L3: Processes
- L4: Activities

Include APQC codes where present. Make sure to preserve the hierarchical relationships between levels.`,
			},
			{
				Kind:  domain.StepHuman,
				Label: "Review and Request Client Data",
				Instructions: "Review the structured taxonomy extracted by AI. Make any necessary corrections " +
					"or adjustments. When ready, request additional data from the client to enrich the taxonomy.",
			},
			{
				Kind:  domain.StepClientValidate,
				Label: "Client Data Upload",
				Instructions: "Please upload any relevant documents to help us understand your specific " +
					"processes. This could include time studies, organization charts, existing process " +
					"documentation, or other relevant materials.",
			},
			{
				Kind:  domain.StepAI,
				Label: "Enrich with Intelligence",
				SystemPrompt: "You are an expert business process consultant with deep expertise in " +
					"service catalog development and operational optimization.",
				UserPromptTemplate: `Based on the process taxonomy and client data:

1. Add time estimates per process (from client data or industry benchmarks for {{category}} if client data is not available)
2. Add complexity scores (1-5 scale) based on process characteristics
3. Add volume indicators (high/medium/low) based on typical transaction volumes in {{category}}
4. Suggest delivery model for each process: Retain/CoE/BPO/Offshore/Automate
5. For each suggestion, provide a brief explanation of your reasoning

Process Taxonomy:
{{structuredTaxonomy}}

Client Data:
{{clientData}}

Please provide your recommendations in a structured JSON format that maintains the hierarchy of the taxonomy.`,
			},
			{
				Kind:  domain.StepHuman,
				Label: "Strategic Review",
				Instructions: "Review the AI-enriched taxonomy and delivery model recommendations. Provide " +
					"strategic insights, override recommendations as needed, and add any additional context " +
					"based on your expertise.",
			},
			{
				Kind:         domain.StepAI,
				Label:        "Generate Deliverable",
				SystemPrompt: "You are an expert at creating professional business presentations and reports.",
				UserPromptTemplate: `Create a comprehensive service catalog deliverable based on the enriched taxonomy and strategic insights. The deliverable should include:

1. Executive summary highlighting key findings and recommendations
2. Full taxonomy with delivery model recommendations
3. Implementation roadmap with prioritized initiatives
4. Strategic considerations and next steps

Enriched Taxonomy:
{{enrichedTaxonomy}}

Strategic Insights:
{{strategicInsights}}

Format the output as a professional report suitable for executive presentation.`,
			},
		},
	}
}
